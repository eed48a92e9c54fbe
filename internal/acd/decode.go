package acd

import (
	"fmt"
	"strings"
	"time"

	"github.com/hqmon/argusd/internal/model"
)

// Result holds everything extracted from one response document. Only
// OrderID is guaranteed; the payload fields are populated when the document
// carries the corresponding elements, independent of the order_type header,
// since responses occasionally omit it.
type Result struct {
	OrderID string
	Type    model.OrderType
	State   model.OrderState
	// StatePresent records whether the document carried an explicit
	// order_state. Absent states decode as Finished.
	StatePresent bool
	// StatusPresent records whether an acd_err element was seen at all.
	// Older firmware omits it on success.
	StatusPresent bool
	Err           *model.OrderError

	Snapshot     *model.SystemSnapshot
	Measurements []model.MeasurementPoint
	Frequencies  []model.FrequencyEntry
	Transmitters []model.TransmitterEntry
}

// Failed reports whether the instrument flagged the order as failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// DecodeResponse extracts the order header, error status, and payload from
// a response document. Extraction is best-effort: malformed or missing
// payload elements are skipped, and only an unparseable document or a
// missing order_id fails the decode.
func (c *Codec) DecodeResponse(data []byte) (*Result, error) {
	root, err := parseDocument(data)
	if err != nil {
		return nil, err
	}

	r := &Result{OrderID: textOf(root, "order_id")}
	if r.OrderID == "" {
		return nil, fmt.Errorf("decode response: no order_id element")
	}

	if t := textOf(root, "order_type"); t != "" {
		r.Type = model.OrderType(strings.ToUpper(t))
	}
	if s := textOf(root, "order_state"); s != "" {
		r.State = model.ParseOrderState(s)
		r.StatePresent = true
	} else {
		r.State = model.OrderStateFinished
	}

	if errNode := root.find("acd_err"); errNode != nil {
		r.StatusPresent = true
		if code := errNode.value(); !isSuccessCode(code) {
			msg := textOf(root, "acd_err_mess")
			if msg == "" {
				msg = "Unknown error"
			}
			r.Err = &model.OrderError{Code: code, Message: msg}
		}
	}

	c.decodeTopology(root, r)
	decodeMeasurements(root, r)
	decodeFrequencies(root, r)
	decodeTransmitters(root, r)
	return r, nil
}

func isSuccessCode(code string) bool {
	return code == "" || strings.EqualFold(code, "S") || strings.EqualFold(code, "Success")
}

// decodeTopology handles both topology shapes: nested monsys_structure
// blocks from parameter queries and newer state queries, and the flat
// station/device listing from older state responses.
func (c *Codec) decodeTopology(root *node, r *Result) {
	if structured := root.findAll("monsys_structure"); len(structured) > 0 {
		snap := &model.SystemSnapshot{
			OrderID:     r.OrderID,
			Kind:        model.SnapshotState,
			TakenAt:     time.Now().UTC(),
			MonitorTime: textOf(root, "mss_monitor_time"),
		}
		for _, st := range structured {
			snap.Stations = append(snap.Stations, c.decodeStation(st))
		}
		for i := range snap.Stations {
			if len(snap.Stations[i].Paths) > 0 {
				snap.Kind = model.SnapshotParams
				break
			}
		}
		r.Snapshot = snap
		return
	}

	names := valuesOf(root, "mss_st_name")
	runNode := root.find("mss_run")
	if len(names) == 0 && runNode == nil {
		return
	}
	snap := &model.SystemSnapshot{
		OrderID:     r.OrderID,
		Kind:        model.SnapshotState,
		TakenAt:     time.Now().UTC(),
		User:        textOf(root, "mss_user"),
		MonitorTime: textOf(root, "mss_monitor_time"),
	}
	if runNode != nil {
		running := strings.EqualFold(runNode.value(), "Y")
		snap.Running = &running
	}
	for _, d := range root.findAll("mss_dev") {
		if dev := decodeDevice(d); dev.Name != "" {
			snap.Devices = append(snap.Devices, dev)
		}
	}
	for _, name := range names {
		snap.Stations = append(snap.Stations, model.Station{
			Name:    name,
			Running: snap.Running != nil && *snap.Running,
			User:    snap.User,
		})
	}
	r.Snapshot = snap
}

func (c *Codec) decodeStation(st *node) model.Station {
	out := model.Station{
		Name:         textOf(st, "mss_st_name"),
		Type:         strings.ToUpper(textOf(st, "mss_st_type")),
		Controller:   textOf(st, "mss_rmc"),
		ControllerPC: textOf(st, "mss_rmc_pc"),
		Longitude:    floatOf(st, "mss_long"),
		Latitude:     floatOf(st, "mss_lat"),
		Running:      strings.EqualFold(textOf(st, "mss_run"), "Y"),
		User:         textOf(st, "mss_user"),
	}
	for _, d := range st.findAll("mss_dev") {
		if dev := decodeDevice(d); dev.Name != "" {
			out.Devices = append(out.Devices, dev)
		}
	}
	for _, p := range st.findAll("mss_paths") {
		out.Paths = append(out.Paths, c.decodePath(p))
	}
	return out
}

func decodeDevice(d *node) model.Device {
	return model.Device{
		Name:   textOf(d, "d_name"),
		State:  textOf(d, "d_state"),
		Driver: textOf(d, "d_driver"),
	}
}

func (c *Codec) decodePath(p *node) model.SignalPath {
	path := model.SignalPath{Name: textOf(p, "mp_name")}
	if v := floatOf(p, "mp_fr_l"); v != nil {
		path.FreqLow = *v
	}
	if v := floatOf(p, "mp_fr_u"); v != nil {
		path.FreqHigh = *v
	}
	for _, d := range p.findAll("mp_dev") {
		path.Devices = append(path.Devices, c.decodePathDevice(d, path.Name))
	}
	return path
}

func (c *Codec) decodePathDevice(d *node, pathName string) model.PathDevice {
	dev := model.PathDevice{
		Name:          textOf(d, "d_name"),
		Driver:        textOf(d, "d_driver"),
		Detectors:     valuesOf(d, "d_det"),
		Bandwidths:    valuesOf(d, "d_ifbw"),
		Attenuators:   valuesOf(d, "d_rfattn"),
		Demodulations: valuesOf(d, "d_demod"),
		Parameters:    valuesOf(d, "d_mparam"),
	}
	dev.TaskKinds = c.caps.TasksForDriver(dev.Driver)
	dev.DirectionFinding = c.caps.DirectionFinding(dev.Parameters)
	dev.TDOA = c.caps.TDOA(dev.Name, dev.Driver, pathName)
	return dev
}

func decodeMeasurements(root *node, r *Result) {
	for _, m := range root.findAll("meas_data") {
		freq := floatOf(m, "md_m_freq")
		if freq == nil {
			continue
		}
		point := model.MeasurementPoint{
			Frequency: *freq,
			Timestamp: textOf(m, "md_time"),
			Bearing:   floatOf(m, "md_dir"),
		}
		if lev := floatOf(m, "md_lev"); lev != nil {
			point.Level = lev
		} else {
			point.Level = floatOf(m, "md_d_lev")
		}
		r.Measurements = append(r.Measurements, point)
	}
}

func decodeFrequencies(root *node, r *Result) {
	for _, f := range root.findAll("freq_res") {
		freq := floatOf(f, "freq")
		if freq == nil {
			continue
		}
		r.Frequencies = append(r.Frequencies, model.FrequencyEntry{
			TxID:        intOf(f, "tx_id"),
			Frequency:   *freq,
			LowerFreq:   floatOf(f, "freq_l"),
			UpperFreq:   floatOf(f, "freq_u"),
			Channel:     textOf(f, "channel"),
			Bandwidth:   floatOf(f, "bandwidth"),
			Transmitter: textOf(f, "tx_name"),
			Occupied:    intOf(f, "occupied"),
		})
	}
}

func decodeTransmitters(root *node, r *Result) {
	for _, t := range root.findAll("tx_res") {
		freq := floatOf(t, "freq")
		if freq == nil {
			continue
		}
		r.Transmitters = append(r.Transmitters, model.TransmitterEntry{
			TxID:      intOf(t, "tx_id"),
			Frequency: *freq,
			Channel:   textOf(t, "channel"),
			Service:   textOf(t, "service"),
			CallSign:  textOf(t, "call_sign"),
			Licensee:  textOf(t, "licensee"),
			State:     textOf(t, "state"),
			Station:   textOf(t, "station"),
		})
	}
}
