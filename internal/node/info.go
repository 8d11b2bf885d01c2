package node

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"enoctl/internal/activity"
)

// Info is the modem status reported on GET /.
type Info struct {
	IMSI           string `json:"imsi"`
	Model          string `json:"model"`
	Manufacturer   string `json:"manufacturer"`
	NetworkName    string `json:"network_name"`
	SignalStrength int    `json:"signal_strength"`
}

// Info queries the node's modem status. It doubles as a liveness check.
func (h *Handle) Info(ctx context.Context) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/", nil)
	if err != nil {
		return Info{}, err
	}
	body, err := h.do(req, OpInfo, maxErrorBody)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return Info{}, h.remoteError(req, OpInfo, http.StatusOK, "", err)
	}
	return info, nil
}

// ResetAll clears every activity log on each handle, the usual per-scenario
// setup step. All resets are attempted; the errors are joined.
func ResetAll(ctx context.Context, handles ...*Handle) error {
	var errs []error
	for _, h := range handles {
		for _, kind := range activity.Kinds() {
			if err := h.ResetLog(ctx, kind); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
