//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"
)

type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta *struct {
		NextCursor string `json:"next_cursor"`
		HasNext    bool   `json:"has_next"`
	} `json:"meta"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type apiRecord struct {
	ID          string     `json:"notificationId"`
	Status      string     `json:"deliveryStatus"`
	DeliveredAt *time.Time `json:"deliveredAt"`
}

func decode(t *testing.T, b []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("decode envelope: %v body=%s", err, string(b))
	}
	return env
}

func TestHistoryAPI_QueryAndReceipt(t *testing.T) {
	cfg := LoadCfg()
	WaitHealthz(t, cfg.NotifierHealth, 60*time.Second)
	WaitHealthz(t, cfg.HistoryAPI+"/healthz", 60*time.Second)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	userID := "it-user-" + RandID()
	eventID := "it-ev-" + RandID()
	PublishJSON(t, cfg.KafkaBootstrap, cfg.InTopic, userID, Event("test_failed", eventID, userID, "qa@example.com"))
	WaitHistory(t, db, eventID, 1, 30*time.Second)

	env := decode(t, HTTPDoJSON(t, http.MethodGet,
		fmt.Sprintf("%s/v1/history?userId=%s&limit=10", cfg.HistoryAPI, userID), nil, http.StatusOK))
	var list []apiRecord
	if err := json.Unmarshal(env.Data, &list); err != nil || len(list) != 1 {
		t.Fatalf("list: %v %s", err, string(env.Data))
	}
	if env.Meta == nil || env.Meta.HasNext {
		t.Fatalf("unexpected meta: %+v", env.Meta)
	}
	id := list[0].ID

	env = decode(t, HTTPDoJSON(t, http.MethodPatch, cfg.HistoryAPI+"/v1/history/"+id+"/status",
		[]byte(`{"status":"delivered"}`), http.StatusOK))
	var rec apiRecord
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Status != "delivered" || rec.DeliveredAt == nil {
		t.Fatalf("receipt not applied: %+v", rec)
	}

	env = decode(t, HTTPDoJSON(t, http.MethodPatch, cfg.HistoryAPI+"/v1/history/"+id+"/status",
		[]byte(`{"status":"failed"}`), http.StatusConflict))
	if env.Error == nil || env.Error.Code != "conflict" {
		t.Fatalf("want conflict, got %+v", env.Error)
	}

	HTTPDoJSON(t, http.MethodGet, cfg.HistoryAPI+"/v1/history?cursor=%21%21", nil, http.StatusBadRequest)
}
