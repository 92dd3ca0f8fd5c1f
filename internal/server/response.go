package server

import (
	"bytes"
	"embed"
	"fmt"
	"time"
)

//go:embed pages/*.html
var pageFiles embed.FS

const (
	// fastRequest は即座に応答するリクエスト行
	fastRequest = "GET / HTTP/1.1\r\n"
	// slowRequest はSlowDelayだけ待ってから応答するリクエスト行
	slowRequest = "GET /sleep HTTP/1.1\r\n"

	statusOK       = "HTTP/1.1 200 OK"
	statusNotFound = "HTTP/1.1 404 NOT FOUND"
)

var (
	helloPage    = mustPage("pages/hello.html")
	notFoundPage = mustPage("pages/404.html")
)

func mustPage(name string) []byte {
	data, err := pageFiles.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("server: missing embedded page %s: %v", name, err))
	}
	return data
}

// route はリクエストの先頭からステータス行と本文を決める
// 遅いパスでは sleep を呼んでから応答する
func route(request []byte, slowDelay time.Duration, sleep func(time.Duration)) (status string, body []byte) {
	switch {
	case bytes.HasPrefix(request, []byte(fastRequest)):
		return statusOK, helloPage
	case bytes.HasPrefix(request, []byte(slowRequest)):
		sleep(slowDelay)
		return statusOK, helloPage
	default:
		return statusNotFound, notFoundPage
	}
}

// formatResponse はステータス行・Content-Length・本文を連結する
func formatResponse(status string, body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(status) + len(body) + 32)
	fmt.Fprintf(&buf, "%s\r\nContent-Length: %d\r\n\r\n", status, len(body))
	buf.Write(body)
	return buf.Bytes()
}
