package httpserver

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/MoloMalteser/EilikCFW/internal/config"
	"github.com/MoloMalteser/EilikCFW/internal/device"
	"github.com/MoloMalteser/EilikCFW/internal/firmware"
	"github.com/MoloMalteser/EilikCFW/internal/motion"
	"github.com/MoloMalteser/EilikCFW/internal/servo"
)

func newTestServer(firmwareOutput string) (*Server, *servo.Bank) {
	bank := servo.NewBank(rand.New(rand.NewSource(1)))
	dev := device.New(cfgpkg.DeviceConfig{
		ID:              "EILIK_EMU_001",
		FirmwareVersion: "1.0.0",
		HardwareVersion: 0x0100,
	})
	seq := motion.NewSequencer(bank, motion.DefaultLibrary(), rand.New(rand.NewSource(2)), nil, nil)
	srv := New(cfgpkg.HTTPConfig{Addr: ":0"}, "/metrics", nil, Deps{
		Bank:      bank,
		Device:    dev,
		Sequencer: seq,
		Firmware: firmware.Config{
			Version:          "CFW-1.0.0",
			DebugMode:        true,
			EnhancedServo:    true,
			CustomAnimations: true,
			RemoteDebug:      true,
		},
		FirmwareOutput: firmwareOutput,
	})
	return srv, bank
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer("")
	w := doRequest(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestGetDevice(t *testing.T) {
	srv, _ := newTestServer("")
	w := doRequest(t, srv, http.MethodGet, "/api/v1/device")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Device     device.Info `json:"device"`
		Bootloader bool        `json:"bootloader"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "EILIK_EMU_001", body.Device.ID)
	assert.False(t, body.Bootloader)
}

func TestGetServos(t *testing.T) {
	srv, _ := newTestServer("")
	w := doRequest(t, srv, http.MethodGet, "/api/v1/servos")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Servos []servo.State `json:"servos"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Servos, 8)
	assert.Equal(t, uint16(500), body.Servos[0].Position)
}

func TestGetPerformance(t *testing.T) {
	srv, bank := newTestServer("")
	require.NoError(t, bank.Move(0, 700, 50, 10))

	w := doRequest(t, srv, http.MethodGet, "/api/v1/performance")
	require.Equal(t, http.StatusOK, w.Code)

	var perf servo.Performance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &perf))
	assert.Equal(t, 1, perf.MovingServos)
}

func TestGetMotions(t *testing.T) {
	srv, _ := newTestServer("")
	w := doRequest(t, srv, http.MethodGet, "/api/v1/motions")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Animations []string `json:"animations"`
		Behaviors  []string `json:"behaviors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"dance", "stretch", "wave"}, body.Animations)
	assert.Equal(t, []string{"curious", "idle", "sleepy"}, body.Behaviors)
}

func TestPlayAnimation(t *testing.T) {
	srv, bank := newTestServer("")

	w := doRequest(t, srv, http.MethodPost, "/api/v1/animations/wave")
	assert.Equal(t, http.StatusOK, w.Code)
	s, _ := bank.Get(0)
	assert.True(t, s.Moving)

	w = doRequest(t, srv, http.MethodPost, "/api/v1/animations/moonwalk")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerBehavior(t *testing.T) {
	srv, _ := newTestServer("")

	w := doRequest(t, srv, http.MethodPost, "/api/v1/behaviors/idle")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, srv, http.MethodPost, "/api/v1/behaviors/panic")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetSafety(t *testing.T) {
	srv, bank := newTestServer("")

	body := `{"limits":{"min":100,"max":900},"safety":{"maxTemp":70,"maxVoltage":5.5,"minVoltage":4.5}}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/servos/3/safety", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	s, err := bank.Get(3)
	require.NoError(t, err)
	assert.Equal(t, servo.Limits{Min: 100, Max: 900}, s.Limits)
	assert.Equal(t, servo.Safety{MaxTemp: 70, MaxVoltage: 5.5, MinVoltage: 4.5}, s.Safety)

	// 超出 ID 范围与非数字 ID
	req = httptest.NewRequest(http.MethodPut, "/api/v1/servos/8/safety", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/servos/left/safety", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveFirmware(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eilik-cfw.bin")
	srv, _ := newTestServer(path)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/firmware/save")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Path  string `json:"path"`
		Bytes int    `json:"bytes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, path, body.Path)

	img, err := firmware.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "CFW-1.0.0", img.Config.Version)
	assert.Len(t, img.Servos, 8)
}

func TestGetFirmware(t *testing.T) {
	srv, _ := newTestServer("")
	w := doRequest(t, srv, http.MethodGet, "/api/v1/firmware")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))

	img, err := firmware.Parse(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "CFW-1.0.0", img.Config.Version)
	assert.Len(t, img.Servos, 8)
}
