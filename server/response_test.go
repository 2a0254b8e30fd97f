package server

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/errors"
	"github.com/legit-games/grant-engine/manage"
	"github.com/legit-games/grant-engine/models"
)

func TestBuildAuthorizeResponseQueryKeepsRegisteredParams(t *testing.T) {
	resp, err := BuildAuthorizeResponse(&manage.AuthorizeResult{
		ResponseType: oauth2.Code,
		RedirectURI:  "https://app.example/cb?tenant=a",
		State:        "s&t=1",
		Code:         "abc",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
	u, err := url.Parse(resp.Location)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("tenant") != "a" || q.Get("code") != "abc" || q.Get("state") != "s&t=1" {
		t.Fatalf("location %s", resp.Location)
	}
}

func TestBuildAuthorizeResponseFragment(t *testing.T) {
	resp, err := BuildAuthorizeResponse(&manage.AuthorizeResult{
		ResponseType: oauth2.Token,
		RedirectURI:  "https://app.example/cb",
		State:        "a b&c",
		Token: &models.TokenResponse{
			AccessToken: "at",
			TokenType:   oauth2.TokenTypeBearer,
			ExpiresIn:   15 * time.Minute,
			Scope:       "openid profile",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	base, frag, ok := strings.Cut(resp.Location, "#")
	if !ok || base != "https://app.example/cb" {
		t.Fatalf("location %s", resp.Location)
	}
	v, err := url.ParseQuery(frag)
	if err != nil {
		t.Fatal(err)
	}
	if v.Get("access_token") != "at" || v.Get("expires_in") != "900" || v.Get("scope") != "openid profile" || v.Get("state") != "a b&c" {
		t.Fatalf("fragment %s", frag)
	}
}

func TestBuildAuthorizeResponseError(t *testing.T) {
	resp, err := BuildAuthorizeResponse(&manage.AuthorizeResult{
		ResponseType: oauth2.Code,
		RedirectURI:  "https://app.example/cb",
		State:        "xyz",
		Err:          errors.ErrNotAllowedScope,
	})
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(resp.Location)
	q := u.Query()
	if q.Get("error") != "invalid_scope" || q.Get("error_description") == "" || q.Get("state") != "xyz" {
		t.Fatalf("location %s", resp.Location)
	}
	if q.Has("code") {
		t.Fatal("error response carries a code")
	}
}

func TestBuildAuthorizeResponseWebMessageEscapesState(t *testing.T) {
	resp, err := BuildAuthorizeResponse(&manage.AuthorizeResult{
		ResponseType: oauth2.WebMessage,
		RedirectURI:  "https://app.example:8443/cb",
		State:        `</script><script>alert(1)</script>`,
		Code:         "abc",
	})
	if err != nil {
		t.Fatal(err)
	}
	body := string(resp.Body)
	if strings.Count(body, "</script>") != 1 {
		t.Fatalf("state escaped the script block:\n%s", body)
	}
	if !strings.Contains(body, "app.example:8443") {
		t.Fatalf("origin missing:\n%s", body)
	}
	if resp.Header.Get("Cache-Control") != "no-store" {
		t.Fatal("web message response is cacheable")
	}
}

func TestBuildAuthorizeResponseUnknownType(t *testing.T) {
	_, err := BuildAuthorizeResponse(&manage.AuthorizeResult{ResponseType: "id_token", RedirectURI: "https://app.example/cb"})
	if !errors.Is(err, errors.ErrUnsupportedResponseType) {
		t.Fatalf("err = %v", err)
	}
}
