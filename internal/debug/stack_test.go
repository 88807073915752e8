package debug

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSkipStack(t *testing.T) {
	tests := []struct {
		name   string
		item   string
		filter string
		skip   bool
	}{
		{name: "main", item: "goroutine 1 [select]:\nmain.main()", skip: true},
		{name: "capture", item: "goroutine 7 [syscall]:\ngithub.com/AlexxIT/go2cam/pkg/v4l2.(*Device).capture", skip: false},
		{name: "filter match", item: "pkg/v4l2.(*Device).capture", filter: "capture", skip: false},
		{name: "filter miss", item: "pkg/fake.(*Device).worker", filter: "capture", skip: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.skip, skipStack([]byte(tt.item), []byte(tt.filter)))
		})
	}
}

func TestStackHandler(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	go func() { <-done }()

	r := httptest.NewRequest("GET", "/api/stack?filter=TestStackHandler", nil)
	w := httptest.NewRecorder()
	stackHandler(w, r)

	body := w.Body.String()
	require.Contains(t, body, "TestStackHandler.func1")
	require.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	require.Contains(t, body, "Total: ")
}
