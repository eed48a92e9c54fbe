package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/hqmon/argusd/internal/model"
	"github.com/hqmon/argusd/internal/uds"
)

// actorCLI is recorded as the originator of everything arriving over the
// control socket.
const actorCLI = "cli"

// OrderSubmitParams is the request payload for the order_submit UDS command.
// Exactly one of Measurement and ListQuery may be set, matching the order
// type's parameter block.
type OrderSubmitParams struct {
	Type        string                   `json:"type"` // "OR", "GSS", "GSP", "IFL", "ITL"
	Name        string                   `json:"name,omitempty"`
	Measurement *model.MeasurementParams `json:"measurement,omitempty"`
	ListQuery   *model.ListQueryParams   `json:"list_query,omitempty"`
}

// OrderGetParams is the request payload for the order_get UDS command.
type OrderGetParams struct {
	OrderID string `json:"order_id"`
}

// OrderListParams is the request payload for the order_list UDS command.
type OrderListParams struct {
	State string `json:"state,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// OrderDetail is the order_get response payload: the order row plus every
// decoded result recorded for it.
type OrderDetail struct {
	Order           *model.Order             `json:"order"`
	Measurements    []model.MeasurementPoint `json:"measurements,omitempty"`
	FrequencyList   *model.FrequencyList     `json:"frequency_list,omitempty"`
	TransmitterList *model.TransmitterList   `json:"transmitter_list,omitempty"`
	Snapshot        *model.SystemSnapshot    `json:"snapshot,omitempty"`
}

func (d *Daemon) handleOrderSubmit(req *uds.Request) *uds.Response {
	var params OrderSubmitParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}

	order, err := d.SubmitOrder(actorCLI, params)
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(order)
}

func (d *Daemon) handleOrderGet(req *uds.Request) *uds.Response {
	var params OrderGetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}

	detail, err := d.Order(params.OrderID)
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(detail)
}

func (d *Daemon) handleOrderList(req *uds.Request) *uds.Response {
	var params OrderListParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
		}
	}

	orders, err := d.Orders(params.State, params.Limit)
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

func (d *Daemon) handleCheckResponses(req *uds.Request) *uds.Response {
	result, err := d.CheckResponses()
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(result)
}
