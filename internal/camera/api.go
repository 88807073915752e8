package camera

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/AlexxIT/go2cam/internal/api"
	"github.com/AlexxIT/go2cam/internal/api/ws"
	"github.com/AlexxIT/go2cam/internal/app"
	"github.com/AlexxIT/go2cam/pkg/camera"
)

type status struct {
	camera.Stats
	Target      camera.Size `json:"target"`
	Orientation int         `json:"orientation"`
	Record      *recordInfo `json:"record,omitempty"`
}

func (m *Module) Status() *status {
	return &status{
		Stats:       m.session.Stats(),
		Target:      m.Target(),
		Orientation: camera.DisplayOrientation(m.session.Info(), camera.DisplayRotation(m.cfg.Rotation)),
		Record:      m.recordInfo(),
	}
}

func (m *Module) apiCamera(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}
	api.ResponsePrettyJSON(w, m.Status())
}

func (m *Module) apiDevices(w http.ResponseWriter, r *http.Request) {
	infos, err := m.driver.Devices()
	if err != nil {
		api.Error(w, err)
		return
	}
	api.ResponseJSON(w, infos)
}

func (m *Module) apiOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	if err := m.open(); err != nil {
		api.Error(w, statusError(err))
		return
	}

	m.respond(w)
}

func (m *Module) apiRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	m.Close()
	m.respond(w)
}

// apiPreview
// POST /api/camera/preview?size=1280x720&rotation=90
// DELETE /api/camera/preview
func (m *Module) apiPreview(w http.ResponseWriter, r *http.Request) {
	var err error

	switch r.Method {
	case "POST":
		query := r.URL.Query()

		target := m.Target()
		if s := query.Get("size"); s != "" {
			if target, err = camera.ParseSize(s); err != nil {
				api.Error(w, api.NewError(http.StatusBadRequest, err))
				return
			}
		}

		rotation := m.cfg.Rotation
		if s := query.Get("rotation"); s != "" {
			if rotation, err = strconv.Atoi(s); err != nil {
				api.Error(w, api.NewError(http.StatusBadRequest, err))
				return
			}
		}

		if err = m.open(); err == nil {
			_, err = m.session.StartPreview(target, m.Env(rotation))
		}

	case "DELETE":
		_, _ = m.stopRecording()
		err = m.session.StopPreview()

	default:
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	if err != nil {
		api.Error(w, statusError(err))
		return
	}

	m.respond(w)
}

// apiResolution
// GET /api/camera/resolution
// POST /api/camera/resolution?size=1920x1080
func (m *Module) apiResolution(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		api.ResponseJSON(w, map[string]any{
			"resolution": m.session.Resolution(),
			"sizes":      m.session.AvailableResolutions(),
		})
		return

	case "POST":
		size, err := camera.ParseSize(r.URL.Query().Get("size"))
		if err != nil {
			api.Error(w, api.NewError(http.StatusBadRequest, err))
			return
		}

		// recording file has fixed frame size
		if size != m.session.Resolution() {
			_, _ = m.stopRecording()
		}

		if err = m.session.SetResolution(size); err != nil {
			api.Error(w, statusError(err))
			return
		}

		m.mu.Lock()
		m.cfg.Resolution = size.String()
		m.mu.Unlock()

		if err = app.PatchConfig([]string{"camera", "resolution"}, size.String()); err != nil {
			m.log.Warn().Err(err).Msg("[camera] save resolution")
		}

		m.respond(w)

	default:
		http.Error(w, "", http.StatusMethodNotAllowed)
	}
}

// apiRecord
// POST /api/camera/record?path=/tmp/video.y4m
// DELETE /api/camera/record
func (m *Module) apiRecord(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "POST":
		if _, err := m.startRecording(r.URL.Query().Get("path")); err != nil {
			api.Error(w, statusError(err))
			return
		}
		m.respond(w)

	case "DELETE":
		info, err := m.stopRecording()
		if err != nil {
			api.Error(w, err)
			return
		}
		if info == nil {
			api.Error(w, api.NewError(http.StatusNotFound, errors.New("camera: not recording")))
			return
		}
		m.notify()
		api.ResponseJSON(w, info)

	default:
		http.Error(w, "", http.StatusMethodNotAllowed)
	}
}

func (m *Module) respond(w http.ResponseWriter) {
	st := m.Status()
	m.broadcast(st)
	api.ResponseJSON(w, st)
}

// wsCamera - send status now and after every change until client gone
func (m *Module) wsCamera(tr *ws.Transport, _ *ws.Message) error {
	m.mu.Lock()
	_, ok := m.subs[tr]
	if !ok {
		m.subs[tr] = struct{}{}
	}
	m.mu.Unlock()

	if !ok {
		tr.OnClose(func() {
			m.mu.Lock()
			delete(m.subs, tr)
			m.mu.Unlock()
		})
	}

	tr.Write(&ws.Message{Type: "camera", Value: m.Status()})
	return nil
}

func (m *Module) notify() {
	m.broadcast(m.Status())
}

func (m *Module) broadcast(st *status) {
	m.mu.Lock()
	subs := make([]*ws.Transport, 0, len(m.subs))
	for tr := range m.subs {
		subs = append(subs, tr)
	}
	m.mu.Unlock()

	for _, tr := range subs {
		tr.Write(&ws.Message{Type: "camera", Value: st})
	}
}

func statusError(err error) error {
	switch {
	case errors.Is(err, camera.ErrInvalidState), errors.Is(err, errRecording):
		return api.NewError(http.StatusConflict, err)
	case errors.Is(err, camera.ErrDeviceUnavailable):
		return api.NewError(http.StatusServiceUnavailable, err)
	case errors.Is(err, camera.ErrNoCandidates):
		return api.NewError(http.StatusUnprocessableEntity, err)
	}
	return err
}
