package telemetry

import (
	"context"
	"testing"
)

func TestCollectTelemetryDataNeverFatal(t *testing.T) {
	env := CollectTelemetryData(context.Background(), t.TempDir(), "", nil)
	if env.ConfigServer != "none" {
		t.Fatalf("expected configServer to default to 'none', got %q", env.ConfigServer)
	}
	if env.HostInfo.CPUs <= 0 {
		t.Fatal("expected a positive CPU count")
	}
	if env.StartTime <= 0 {
		t.Fatal("expected a positive startTime")
	}
}

func TestCollectTelemetryDataPreservesConfigServer(t *testing.T) {
	env := CollectTelemetryData(context.Background(), t.TempDir(), "https://config.example.com", nil)
	if env.ConfigServer != "https://config.example.com" {
		t.Fatalf("expected configServer to be preserved, got %q", env.ConfigServer)
	}
}

func TestSinkEmitNoopWhenDisabled(t *testing.T) {
	sink := NewSink(false, "https://collector.example.com", Envelope{}, nil)
	// Should not panic, and emitting with a nil Client is safe because a
	// disabled sink returns before ever touching it.
	sink.Client = nil
	sink.Emit(Event{Type: "test"})
}

func TestSinkEmitNoopWithoutCollectorURL(t *testing.T) {
	sink := NewSink(true, "", Envelope{}, nil)
	sink.Emit(Event{Type: "test"}) // should simply log and return
}

func TestSinkEmitNilSinkIsSafe(t *testing.T) {
	var sink *Sink
	sink.Emit(Event{Type: "test"}) // must not panic
}

func TestSinkEmitDegradesOnRejectedCollectorURL(t *testing.T) {
	// Loopback collector URLs are blocked by the security gate; Emit must
	// degrade silently rather than attempting the POST.
	sink := NewSink(true, "https://127.0.0.1:1/collect", Envelope{}, nil)
	sink.Emit(Event{Type: "test"})
}
