package uazapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/leadflow/internal/channels"
)

func TestSendTextAndAudio(t *testing.T) {
	var text SendTextRequest
	var media SendMediaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("token") != "inst-token" {
			t.Errorf("missing token header on %s", r.URL.Path)
		}
		switch r.URL.Path {
		case "/send/text":
			json.NewDecoder(r.Body).Decode(&text)
			io.WriteString(w, `{"id":"5511:3EB0","messageid":"3EB0"}`)
		case "/send/media":
			json.NewDecoder(r.Body).Decode(&media)
			io.WriteString(w, `{"messageid":"3EB1"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	creds := channels.Credentials{CredToken: "inst-token"}

	res, err := client.SendText(context.Background(), creds, "5511988887777", "Olá")
	if err != nil {
		t.Fatal(err)
	}
	if res.MessageID != "3EB0" || text.Number != "5511988887777" || text.Text != "Olá" {
		t.Errorf("unexpected text send %+v %+v", res, text)
	}

	res, err = client.SendAudio(context.Background(), creds, "5511988887777", []byte("OggS"), "audio/ogg")
	if err != nil {
		t.Fatal(err)
	}
	decoded, _ := base64.StdEncoding.DecodeString(media.File)
	if res.MessageID != "3EB1" || media.Type != "ptt" || string(decoded) != "OggS" {
		t.Errorf("unexpected media send %+v %+v", res, media)
	}
}

func TestFetchMediaDownloadsLink(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/message/download":
			var req DownloadRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.ID != "3EB2" || !req.ReturnLink {
				t.Errorf("unexpected download request %+v", req)
			}
			io.WriteString(w, `{"fileURL":"`+server.URL+`/files/3EB2.ogg","mimetype":"audio/ogg"}`)
		case "/files/3EB2.ogg":
			w.Write([]byte("OggS"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient("", 0)
	creds := channels.Credentials{CredToken: "inst-token", CredBaseURL: server.URL}
	media, err := client.FetchMedia(context.Background(), creds, channels.MediaRef{MessageID: "3EB2"}, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if string(media.Data) != "OggS" || media.MimeType != "audio/ogg" {
		t.Errorf("unexpected media %+v", media)
	}
}

func TestClientRequiresServerURL(t *testing.T) {
	client := NewClient("", 0)
	if _, err := client.SendText(context.Background(), channels.Credentials{CredToken: "t"}, "1", "x"); err == nil {
		t.Fatal("expected missing server url error")
	}
}
