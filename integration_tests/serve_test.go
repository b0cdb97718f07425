package integration_tests

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/services"
	"github.com/conneroisu/sitepipe/internal/testutils"
	reload "github.com/conneroisu/sitepipe/internal/websocket"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(reload.Message) bool) reload.Message {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg reload.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if match(msg) {
			return msg
		}
	}
}

func TestDevelopmentServe(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	root := testutils.CreateTempProject(t, map[string]string{
		"src/css/main.scss": ".a{color:red}\n",
		"src/js/main.js":    "console.log('site')\n",
	})
	// exec so the interrupt on shutdown reaches the long-running process
	generator := testutils.WriteScript(t, "generate", `mkdir -p dist
echo '<html><body><p class="a">hi</p></body></html>' > dist/index.html
exec sleep 60
`)
	sass := testutils.WriteScript(t, "sass", `for arg; do entry=$arg; done
cat "$entry"
`)

	cfg := testutils.DefaultConfig(t)
	cfg.Content.Command = generator
	cfg.Styles.Command = sass
	cfg.Server.Port = freePort(t)
	cfg.Watch.Debounce = 50 * time.Millisecond

	app, err := services.NewApp(cfg, root, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()

	addr := "localhost:" + strconv.Itoa(cfg.Server.Port)
	var page string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		page = string(body)
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)
	assert.Contains(t, page, `<p class="a">hi</p>`)
	assert.Equal(t, 1, strings.Count(page, "/__sitepipe/reload.js"))

	require.Eventually(t, func() bool {
		_, cssErr := os.Stat(filepath.Join(root, "dist/css/main.css"))
		_, jsErr := os.Stat(filepath.Join(root, "dist/js/main.js"))
		return cssErr == nil && jsErr == nil
	}, 10*time.Second, 50*time.Millisecond)

	readCtx, readCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer readCancel()
	conn, _, err := websocket.Dial(readCtx, "ws://"+addr+"/__sitepipe/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://" + addr}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	time.Sleep(300 * time.Millisecond)

	testutils.WriteFile(t, filepath.Join(root, "src/css/main.scss"), ".a{color:blue}\n")
	msg := readUntil(t, readCtx, conn, func(m reload.Message) bool { return m.Type == reload.TypeCSS })
	assert.Equal(t, []string{"/css/main.css"}, msg.Paths)
	css, err := os.ReadFile(filepath.Join(root, "dist/css/main.css"))
	require.NoError(t, err)
	assert.Contains(t, string(css), "blue")

	testutils.WriteFile(t, filepath.Join(root, "src/js/main.js"), "console.log(;\n")
	msg = readUntil(t, readCtx, conn, func(m reload.Message) bool { return m.Type == reload.TypeErrors && len(m.Failures) > 0 })
	assert.Equal(t, "scripts", msg.Failures[0].Task)
	assert.Equal(t, siteerrors.ErrCodeScriptBundle, msg.Failures[0].Code)

	testutils.WriteFile(t, filepath.Join(root, "src/js/main.js"), "console.log('fixed')\n")
	readUntil(t, readCtx, conn, func(m reload.Message) bool { return m.Type == reload.TypeErrors && len(m.Failures) == 0 })
	assert.False(t, app.Failures.HasFailures())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}
