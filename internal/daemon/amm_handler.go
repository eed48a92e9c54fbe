package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/hqmon/argusd/internal/model"
	"github.com/hqmon/argusd/internal/uds"
)

// AMMCreateParams is the request payload for the amm_create UDS command.
type AMMCreateParams struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Timing      model.TimingDefinition  `json:"timing"`
	Template    model.MeasurementParams `json:"template"`
	Activate    bool                    `json:"activate,omitempty"`
}

// AMMConfigParams addresses one configuration by identifier.
type AMMConfigParams struct {
	ConfigID string `json:"config_id"`
}

// AMMDetail is the amm_get response payload.
type AMMDetail struct {
	Config     *model.AMMConfiguration `json:"config"`
	Executions []*model.AMMExecution   `json:"executions,omitempty"`
}

// recentExecutions bounds the history returned by amm_get.
const recentExecutions = 10

func (d *Daemon) handleAMMList(req *uds.Request) *uds.Response {
	configs, err := d.Configs()
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(map[string]interface{}{
		"configs": configs,
		"count":   len(configs),
	})
}

func (d *Daemon) handleAMMCreate(req *uds.Request) *uds.Response {
	var params AMMCreateParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}

	cfg, err := d.CreateConfig(actorCLI, params)
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(cfg)
}

func (d *Daemon) handleAMMGet(req *uds.Request) *uds.Response {
	var params AMMConfigParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}

	detail, err := d.Config(params.ConfigID)
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(detail)
}

func (d *Daemon) handleAMMStart(req *uds.Request) *uds.Response {
	return d.transitionAMM(req, model.AMMStatusActive)
}

func (d *Daemon) handleAMMStop(req *uds.Request) *uds.Response {
	return d.transitionAMM(req, model.AMMStatusStopped)
}

func (d *Daemon) handleAMMPause(req *uds.Request) *uds.Response {
	return d.transitionAMM(req, model.AMMStatusPaused)
}

func (d *Daemon) transitionAMM(req *uds.Request, target model.AMMStatus) *uds.Response {
	var params AMMConfigParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}

	cfg, err := d.TransitionConfig(params.ConfigID, target)
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(cfg)
}

func (d *Daemon) handleAMMExecute(req *uds.Request) *uds.Response {
	var params AMMConfigParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}

	exec, err := d.ExecuteNow(params.ConfigID)
	if err != nil {
		// A failed run still has a record worth pointing the operator at.
		if exec != nil {
			return uds.ErrorResponse(uds.ErrCodeInternal,
				fmt.Sprintf("execution %s failed: %v", exec.ID, err))
		}
		return errorResponse(err)
	}
	return uds.SuccessResponse(exec)
}
