package logsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testVaultAddr = common.HexToAddress("0xabcdabcdabcdabcdabcdabcdabcdabcdabcdabcd")
	testTopic     = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
)

func fakeRecord(i int) logRecord {
	return logRecord{
		Address:         testVaultAddr.Hex(),
		Topics:          []string{testTopic.Hex()},
		Data:            "0x" + strings.Repeat("00", 160),
		TimeStamp:       fmt.Sprintf("0x%x", 1700000000+i),
		TransactionHash: common.BigToHash(common.Big1).Hex(),
	}
}

func writeRecords(w http.ResponseWriter, count, offset int) {
	records := make([]logRecord, count)
	for i := range records {
		records[i] = fakeRecord(offset + i)
	}
	result, _ := json.Marshal(records)
	_ = json.NewEncoder(w).Encode(envelope{Status: "1", Message: "OK", Result: result})
}

func writeNotice(w http.ResponseWriter, message, notice string) {
	result, _ := json.Marshal(notice)
	_ = json.NewEncoder(w).Encode(envelope{Status: "0", Message: message, Result: result})
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		Endpoint:     server.URL,
		APIKey:       "test",
		ChainID:      1,
		PageInterval: time.Millisecond,
		Retry:        RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	})
}

func TestFetchAllLogsPaginationTerminates(t *testing.T) {
	var pagesRequested []int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pagesRequested = append(pagesRequested, page)
		switch page {
		case 1:
			writeRecords(w, maxPageSize, 0)
		case 2:
			writeRecords(w, 400, maxPageSize)
		default:
			t.Errorf("unexpected page %d requested", page)
			writeNotice(w, "No records found", "")
		}
	})

	entries, err := client.FetchAllLogs(context.Background(), testVaultAddr, testTopic)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1400 {
		t.Fatalf("entries = %d, want 1400", len(entries))
	}
	if len(pagesRequested) != 2 {
		t.Fatalf("pages requested = %v, want exactly [1 2]", pagesRequested)
	}
}

func TestFetchAllLogsNoRecords(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeNotice(w, "No records found", "")
	})
	entries, err := client.FetchAllLogs(context.Background(), testVaultAddr, testTopic)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(entries))
	}
}

func TestFetchAllLogsRetriesThrottle(t *testing.T) {
	var calls int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			writeNotice(w, "NOTOK", "Max rate limit reached")
			return
		}
		writeRecords(w, 3, 0)
	})

	entries, err := client.FetchAllLogs(context.Background(), testVaultAddr, testTopic)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (two throttles, one success)", calls)
	}
}

func TestFetchAllLogsThrottleBudgetExhausted(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeNotice(w, "NOTOK", "Max rate limit reached")
	})
	_, err := client.FetchAllLogs(context.Background(), testVaultAddr, testTopic)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
}

func TestFetchAllLogsAbortKeepsPartial(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 1 {
			writeRecords(w, maxPageSize, 0)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	entries, err := client.FetchAllLogs(context.Background(), testVaultAddr, testTopic)
	if err == nil {
		t.Fatal("expected an abort error")
	}
	if len(entries) != maxPageSize {
		t.Fatalf("partial entries = %d, want %d preserved", len(entries), maxPageSize)
	}
}

func TestFetchAllLogsHTTP429IsThrottle(t *testing.T) {
	var calls int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeRecords(w, 1, 0)
	})
	entries, err := client.FetchAllLogs(context.Background(), testVaultAddr, testTopic)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || calls != 2 {
		t.Fatalf("entries = %d calls = %d", len(entries), calls)
	}
}

func TestParseTimestampForms(t *testing.T) {
	hex, err := parseTimestamp("0x6553f100")
	if err != nil {
		t.Fatal(err)
	}
	dec, err := parseTimestamp("1700000000")
	if err != nil {
		t.Fatal(err)
	}
	if hex != 0x6553f100 || dec != 1700000000 {
		t.Fatalf("parsed %d and %d", hex, dec)
	}
}

func TestBackoffBoundedAndGrowing(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 4 * time.Second}.withDefaults()
	if d := policy.Backoff(1); d < 900*time.Millisecond || d > 1100*time.Millisecond {
		t.Fatalf("attempt 1 delay %v outside jitter band", d)
	}
	if d := policy.Backoff(10); d > 4*time.Second+time.Second {
		t.Fatalf("delay %v exceeds cap", d)
	}
}
