package debug

import (
	"bytes"
	"fmt"
	"net/http"
	"runtime"

	"github.com/AlexxIT/go2cam/internal/api"
)

func Init() {
	api.HandleFunc("api/stack", stackHandler)
}

var stackSkip = [][]byte{
	// main.go
	[]byte("main.main()"),
	[]byte("created by os/signal.Notify"),

	// debug/stack.go
	[]byte("github.com/AlexxIT/go2cam/internal/debug.stackHandler"),

	// api/api.go
	[]byte("created by github.com/AlexxIT/go2cam/internal/api.Init"),
	[]byte("created by net/http.(*connReader).startBackgroundRead"),
	[]byte("created by net/http.(*Server).Serve"),
}

// stackHandler - goroutines without service ones,
// ?filter=capture keeps only stacks with substring
func stackHandler(w http.ResponseWriter, r *http.Request) {
	filter := []byte(r.URL.Query().Get("filter"))

	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}

	sep := []byte("\n\n")
	out := bytes.NewBuffer(nil)
	skipped := 0

	for _, item := range bytes.Split(buf, sep) {
		if skipStack(item, filter) {
			skipped++
			continue
		}
		out.Write(item)
		out.Write(sep)
	}

	_, _ = fmt.Fprintf(out, "Total: %d, Skipped: %d", runtime.NumGoroutine(), skipped)

	api.Response(w, out.Bytes(), api.MimeText)
}

func skipStack(item, filter []byte) bool {
	if len(filter) > 0 && !bytes.Contains(item, filter) {
		return true
	}
	for _, skip := range stackSkip {
		if bytes.Contains(item, skip) {
			return true
		}
	}
	return false
}
