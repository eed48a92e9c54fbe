package acd

import (
	"testing"

	"github.com/hqmon/argusd/internal/model"
)

func mustDecode(t *testing.T, doc string) *Result {
	t.Helper()
	r, err := testCodec().DecodeResponse([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	return r
}

func TestDecodeStateResponse(t *testing.T) {
	// Older firmware answers state queries in the uppercase dialect with a
	// flat station and device listing.
	r := mustDecode(t, `<?xml version="1.0"?>
<XMLSchema1>
  <ORDER_DEF>
    <ORDER_ID>GSS300925101500123</ORDER_ID>
    <ORDER_TYPE>GSS</ORDER_TYPE>
    <ORDER_STATE>Finished</ORDER_STATE>
    <ACD_ERR>S</ACD_ERR>
    <MSS_RUN>Y</MSS_RUN>
    <MSS_USER>operator1</MSS_USER>
    <MSS_MONITOR_TIME>120</MSS_MONITOR_TIME>
    <MSS_ST_NAME>STATION_NORD</MSS_ST_NAME>
    <MSS_ST_NAME>STATION_SUED</MSS_ST_NAME>
    <MSS_DEV>
      <D_NAME>EB500_1</D_NAME>
      <D_STATE>OK</D_STATE>
    </MSS_DEV>
  </ORDER_DEF>
</XMLSchema1>`)

	if r.OrderID != "GSS300925101500123" {
		t.Errorf("OrderID = %q", r.OrderID)
	}
	if r.Type != model.OrderTypeStateQuery {
		t.Errorf("Type = %q", r.Type)
	}
	if r.State != model.OrderStateFinished || !r.StatePresent {
		t.Errorf("State = %q StatePresent = %v", r.State, r.StatePresent)
	}
	if !r.StatusPresent || r.Failed() {
		t.Errorf("StatusPresent = %v Err = %+v", r.StatusPresent, r.Err)
	}

	snap := r.Snapshot
	if snap == nil {
		t.Fatal("no snapshot decoded")
	}
	if snap.Kind != model.SnapshotState {
		t.Errorf("Kind = %q", snap.Kind)
	}
	if snap.Running == nil || !*snap.Running {
		t.Error("Running should decode Y as true")
	}
	if snap.User != "operator1" || snap.MonitorTime != "120" {
		t.Errorf("User = %q MonitorTime = %q", snap.User, snap.MonitorTime)
	}
	if len(snap.Stations) != 2 || snap.Stations[0].Name != "STATION_NORD" {
		t.Fatalf("Stations = %+v", snap.Stations)
	}
	if len(snap.Devices) != 1 || snap.Devices[0].Name != "EB500_1" || snap.Devices[0].State != "OK" {
		t.Fatalf("Devices = %+v", snap.Devices)
	}
	if snap.TakenAt.IsZero() {
		t.Error("TakenAt not set")
	}
}

func TestDecodeParamResponse(t *testing.T) {
	r := mustDecode(t, `<?xml version="1.0"?>
<order_def>
  <order_id>GSP300925101501000</order_id>
  <order_type>GSP</order_type>
  <order_state>Finished</order_state>
  <acd_err>S</acd_err>
  <MONSYS_STRUCTURE>
    <MSS_ST_NAME>STATION_NORD</MSS_ST_NAME>
    <MSS_RMC>RMC01</MSS_RMC>
    <MSS_RMC_PC>PC01</MSS_RMC_PC>
    <MSS_ST_TYPE>f</MSS_ST_TYPE>
    <MSS_LONG>13.405</MSS_LONG>
    <MSS_LAT>52.52</MSS_LAT>
    <MSS_RUN>Y</MSS_RUN>
    <MSS_USER>op</MSS_USER>
    <MSS_PATHS>
      <MP_NAME>PATH_VHF</MP_NAME>
      <MP_FR_L>20000000</MP_FR_L>
      <MP_FR_U>3000000000</MP_FR_U>
      <MP_DEV>
        <D_NAME>EB500_1</D_NAME>
        <D_DRIVER>EB500</D_DRIVER>
        <D_DET>Average</D_DET>
        <D_DET>Peak</D_DET>
        <D_IFBW>10000</D_IFBW>
        <D_RFATTN>0</D_RFATTN>
        <D_DEMOD>FM</D_DEMOD>
        <D_MPARAM>level</D_MPARAM>
        <D_MPARAM>bearing</D_MPARAM>
      </MP_DEV>
    </MSS_PATHS>
  </MONSYS_STRUCTURE>
  <MONSYS_STRUCTURE>
    <MSS_ST_NAME>STATION_SUED</MSS_ST_NAME>
    <MSS_ST_TYPE>M</MSS_ST_TYPE>
    <MSS_RUN>N</MSS_RUN>
  </MONSYS_STRUCTURE>
</order_def>`)

	snap := r.Snapshot
	if snap == nil {
		t.Fatal("no snapshot decoded")
	}
	if snap.Kind != model.SnapshotParams {
		t.Errorf("Kind = %q, want params", snap.Kind)
	}
	if len(snap.Stations) != 2 {
		t.Fatalf("Stations = %d, want 2", len(snap.Stations))
	}

	st := snap.Stations[0]
	if st.Name != "STATION_NORD" || st.Type != "F" || st.Controller != "RMC01" || st.ControllerPC != "PC01" {
		t.Errorf("station header = %+v", st)
	}
	if st.Longitude == nil || *st.Longitude != 13.405 || st.Latitude == nil || *st.Latitude != 52.52 {
		t.Errorf("coordinates = %v %v", st.Longitude, st.Latitude)
	}
	if !st.Running || st.User != "op" {
		t.Errorf("Running = %v User = %q", st.Running, st.User)
	}
	if len(st.Paths) != 1 {
		t.Fatalf("Paths = %+v", st.Paths)
	}

	path := st.Paths[0]
	if path.Name != "PATH_VHF" || path.FreqLow != 20000000 || path.FreqHigh != 3000000000 {
		t.Errorf("path = %+v", path)
	}
	if len(path.Devices) != 1 {
		t.Fatalf("path devices = %+v", path.Devices)
	}

	dev := path.Devices[0]
	if dev.Name != "EB500_1" || dev.Driver != "EB500" {
		t.Errorf("device = %+v", dev)
	}
	if len(dev.Detectors) != 2 || dev.Detectors[1] != "Peak" {
		t.Errorf("Detectors = %v", dev.Detectors)
	}
	if len(dev.Parameters) != 2 {
		t.Errorf("Parameters = %v", dev.Parameters)
	}
	if !dev.DirectionFinding {
		t.Error("bearing parameter should mark the device as direction finding")
	}
	if !dev.TDOA {
		t.Error("EB500 family should be TDOA capable")
	}
	wantTasks := []string{"FFM", "SCAN", "DSCAN", "LOCATION"}
	if len(dev.TaskKinds) != len(wantTasks) {
		t.Fatalf("TaskKinds = %v", dev.TaskKinds)
	}
	for i, task := range wantTasks {
		if dev.TaskKinds[i] != task {
			t.Errorf("TaskKinds[%d] = %q, want %q", i, dev.TaskKinds[i], task)
		}
	}

	if snap.Stations[1].Running {
		t.Error("MSS_RUN N should decode as not running")
	}
}

func TestDecodeErrorResponse(t *testing.T) {
	r := mustDecode(t, `<?xml version="1.0"?>
<order_def>
  <order_id>OR300925101502000</order_id>
  <order_type>OR</order_type>
  <acd_err>E100</acd_err>
  <acd_err_mess>Receiver offline</acd_err_mess>
</order_def>`)

	if !r.StatusPresent {
		t.Error("StatusPresent should be true")
	}
	if !r.Failed() {
		t.Fatal("expected failed result")
	}
	if r.Err.Code != "E100" || r.Err.Message != "Receiver offline" {
		t.Errorf("Err = %+v", r.Err)
	}
	if r.StatePresent {
		t.Error("no order_state element, StatePresent should be false")
	}
	if r.State != model.OrderStateFinished {
		t.Errorf("missing state should default to Finished, got %q", r.State)
	}
}

func TestDecodeErrorWithoutMessage(t *testing.T) {
	r := mustDecode(t, `<order_def><order_id>OR300925101503000</order_id><acd_err>E7</acd_err></order_def>`)
	if !r.Failed() || r.Err.Message != "Unknown error" {
		t.Errorf("Err = %+v", r.Err)
	}
}

func TestDecodeMissingStatusIsSuccess(t *testing.T) {
	r := mustDecode(t, `<order_def><order_id>OR300925101504000</order_id><order_state>In Process</order_state></order_def>`)
	if r.StatusPresent {
		t.Error("StatusPresent should be false without acd_err")
	}
	if r.Failed() {
		t.Errorf("Err = %+v", r.Err)
	}
	if r.State != model.OrderStateInProcess || !r.StatePresent {
		t.Errorf("State = %q StatePresent = %v", r.State, r.StatePresent)
	}
}

func TestDecodeMeasurements(t *testing.T) {
	r := mustDecode(t, `<?xml version="1.0"?>
<order_def>
  <order_id>OR300925101505000</order_id>
  <order_type>OR</order_type>
  <acd_err>Success</acd_err>
  <meas_data>
    <md_m_freq>101500000</md_m_freq>
    <md_lev>42.5</md_lev>
    <md_time>2025-09-30 10:15:01</md_time>
  </meas_data>
  <meas_data>
    <md_m_freq>101600000</md_m_freq>
    <md_d_lev>-12.25</md_d_lev>
    <md_dir>184.5</md_dir>
  </meas_data>
  <meas_data>
    <md_lev>1.0</md_lev>
  </meas_data>
</order_def>`)

	if r.Failed() {
		t.Fatalf("Err = %+v", r.Err)
	}
	if len(r.Measurements) != 2 {
		t.Fatalf("Measurements = %+v, want 2 (point without frequency is dropped)", r.Measurements)
	}

	first := r.Measurements[0]
	if first.Frequency != 101500000 || first.Level == nil || *first.Level != 42.5 {
		t.Errorf("first point = %+v", first)
	}
	if first.Timestamp != "2025-09-30 10:15:01" || first.Bearing != nil {
		t.Errorf("first point = %+v", first)
	}

	second := r.Measurements[1]
	if second.Level == nil || *second.Level != -12.25 {
		t.Errorf("md_d_lev fallback failed: %+v", second)
	}
	if second.Bearing == nil || *second.Bearing != 184.5 {
		t.Errorf("second point bearing = %v", second.Bearing)
	}
}

func TestDecodeFrequencyList(t *testing.T) {
	r := mustDecode(t, `<order_def>
  <order_id>IFL300925101506000</order_id>
  <order_type>IFL</order_type>
  <acd_err>S</acd_err>
  <FREQ_RES>
    <TX_ID>17</TX_ID>
    <FREQ>98500000</FREQ>
    <FREQ_L>98400000</FREQ_L>
    <FREQ_U>98600000</FREQ_U>
    <CHANNEL>CH12</CHANNEL>
    <BANDWIDTH>200000</BANDWIDTH>
    <TX_NAME>Sender West</TX_NAME>
    <OCCUPIED>1</OCCUPIED>
  </FREQ_RES>
  <FREQ_RES>
    <FREQ>99100000</FREQ>
  </FREQ_RES>
</order_def>`)

	if len(r.Frequencies) != 2 {
		t.Fatalf("Frequencies = %+v", r.Frequencies)
	}
	f := r.Frequencies[0]
	if f.TxID == nil || *f.TxID != 17 || f.Frequency != 98500000 {
		t.Errorf("entry = %+v", f)
	}
	if f.LowerFreq == nil || *f.LowerFreq != 98400000 || f.UpperFreq == nil || *f.UpperFreq != 98600000 {
		t.Errorf("bounds = %v %v", f.LowerFreq, f.UpperFreq)
	}
	if f.Channel != "CH12" || f.Transmitter != "Sender West" {
		t.Errorf("entry = %+v", f)
	}
	if f.Occupied == nil || *f.Occupied != 1 {
		t.Errorf("Occupied = %v", f.Occupied)
	}
	if sparse := r.Frequencies[1]; sparse.TxID != nil || sparse.Occupied != nil {
		t.Errorf("sparse entry = %+v", sparse)
	}
}

func TestDecodeTransmitterList(t *testing.T) {
	r := mustDecode(t, `<order_def>
  <order_id>ITL300925101507000</order_id>
  <order_type>ITL</order_type>
  <acd_err>S</acd_err>
  <TX_RES>
    <TX_ID>4</TX_ID>
    <FREQ>93200000</FREQ>
    <CHANNEL>CH4</CHANNEL>
    <SERVICE>FM Radio</SERVICE>
    <CALL_SIGN>DLF</CALL_SIGN>
    <LICENSEE>Deutschlandradio</LICENSEE>
    <STATE>active</STATE>
    <STATION>Hamburg</STATION>
  </TX_RES>
</order_def>`)

	if len(r.Transmitters) != 1 {
		t.Fatalf("Transmitters = %+v", r.Transmitters)
	}
	tx := r.Transmitters[0]
	if tx.TxID == nil || *tx.TxID != 4 || tx.Frequency != 93200000 {
		t.Errorf("entry = %+v", tx)
	}
	if tx.Service != "FM Radio" || tx.CallSign != "DLF" || tx.Licensee != "Deutschlandradio" {
		t.Errorf("entry = %+v", tx)
	}
	if tx.State != "active" || tx.Station != "Hamburg" {
		t.Errorf("entry = %+v", tx)
	}
}

func TestDecodeRejectsBrokenDocuments(t *testing.T) {
	codec := testCodec()

	for _, tc := range []struct {
		name string
		doc  string
	}{
		{"malformed xml", "<order_def><order_id>X</order_def>"},
		{"empty document", ""},
		{"no order id", "<order_def><order_state>Open</order_state></order_def>"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := codec.DecodeResponse([]byte(tc.doc)); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestDecodeIsCaseInsensitive(t *testing.T) {
	upper := `<ORDER_DEF><ORDER_ID>OR300925101508000</ORDER_ID><ACD_ERR>S</ACD_ERR></ORDER_DEF>`
	lower := `<order_def><order_id>OR300925101508000</order_id><acd_err>S</acd_err></order_def>`

	for _, doc := range []string{upper, lower} {
		r := mustDecode(t, doc)
		if r.OrderID != "OR300925101508000" {
			t.Errorf("OrderID = %q", r.OrderID)
		}
		if !r.StatusPresent || r.Failed() {
			t.Errorf("status decode failed for %q", doc)
		}
	}
}
