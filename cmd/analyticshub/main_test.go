package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServer(t *testing.T) {
	rec := httptest.NewRecorder()

	body := strings.NewReader(`{
		"node_id" : "4f9393d518a54dabbf29e82f91d600ce",
		"metrics" : [
			{
				"version" : 1,
				"timestamp" : "2026-03-22T12:42:31+01:00",
				"type" : 2,
				"payload" : {
					"version": 0,
					"event": "accepted",
					"method": "email",
					"attempts": 1
				}
			}
		]
	}`)

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Authorization", "Bearer hub-key")

	m := &mock{}
	c := &config{apiKeys: []string{"hub-key"}}
	makeHandler(m, c)(rec, req)
	if rec.Code != 200 || !m.called {
		t.Fatalf("code: %d, insert called: %v", rec.Code, m.called)
	}
}

func TestServerRejectsUnknownKey(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer wrong")

	m := &mock{}
	c := &config{apiKeys: []string{"hub-key"}}
	makeHandler(m, c)(rec, req)
	if rec.Code != 401 || m.called {
		t.Fatalf("code: %d, insert called: %v", rec.Code, m.called)
	}
}

type mock struct {
	called bool
}

func (m *mock) insert(_ context.Context, _ request) error {
	m.called = true
	return nil
}
