package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadMultipart_LimitHitInTrailingField(t *testing.T) {
	cfg := ServerConfig{MaxInlineBytes: 1024, HardMaxBytes: 1024}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("video", "long.mp4")
	fw.Write(bytes.Repeat([]byte{1}, multipartSlack))
	mw.WriteField("video_url", strings.Repeat("u", 4096))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	sub, err := readMultipart(httptest.NewRecorder(), req, cfg)
	if err != nil {
		t.Fatalf("readMultipart() error = %v, want the oversize submission", err)
	}
	if sub.Size != cfg.HardMaxBytes+1 || sub.Data != nil {
		t.Errorf("submission size = %d, data = %d bytes", sub.Size, len(sub.Data))
	}
}
