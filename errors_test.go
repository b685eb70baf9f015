// errors_test.go: error taxonomy and constructor tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"context"
	"fmt"
	"testing"

	"github.com/agilira/go-errors"
)

func TestKindOf(t *testing.T) {
	cause := fmt.Errorf("disk full")
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"Input", NewMissingNameError(), KindInput},
		{"Access", NewDomainNotAllowedError("https://x.test/p.zip", "x.test"), KindAccess},
		{"Extraction", NewCorruptArchiveError("p.zip", cause), KindExtraction},
		{"Load", NewDescriptorMissingError("/tmp/b"), KindLoad},
		{"LoadCancelled", NewLoadCancelledError("/tmp/b", context.Canceled), KindLoad},
		{"Catalog", NewCatalogError("pkg.Type", "entry already registered"), KindLoad},
		{"BindingMissing", NewBindingMissingError("host", "clock"), KindLoad},
		{"DependencyCycle", NewDependencyCycleError("clock"), KindLoad},
		{"Wiring", NewHookFailedError("greeting", cause), KindWiring},
		{"Lifecycle", NewServiceStartError("demo", "svc", cause), KindLifecycle},
		{"Registry", NewModuleNotFoundError("demo"), KindRegistry},
		{"Config", NewConfigValidationError("bad"), KindConfig},
		{"Transport", NewTransportError("n1", cause), KindTransport},
		{"Pool", NewPoolClosedError(), KindPool},
		{"WrappedByFmt", fmt.Errorf("deploy: %w", NewMissingContentError("demo")), KindInput},
		{"Plain", cause, KindUnknown},
		{"Nil", nil, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewInvalidNameError("a/b", "path separator"))
	if !HasCode(err, ErrCodeInvalidName) {
		t.Error("expected HasCode to find the code through fmt wrapping")
	}
	if HasCode(err, ErrCodeMissingName) {
		t.Error("unexpected code match")
	}
	if HasCode(fmt.Errorf("plain"), ErrCodeInvalidName) {
		t.Error("plain errors carry no code")
	}
}

func TestWrap_NilCause(t *testing.T) {
	err := NewSourceUnreadableError("/tmp/p.zip", nil)
	if err == nil {
		t.Fatal("expected an error for a nil cause")
	}
	if err.ErrorCode() != errors.ErrorCode(ErrCodeSourceUnreadable) {
		t.Errorf("Expected error code %s, got %s", ErrCodeSourceUnreadable, err.ErrorCode())
	}
	if err.Cause != nil {
		t.Errorf("Expected no cause, got %v", err.Cause)
	}
}

func TestRequestErrorConstructors(t *testing.T) {
	t.Run("NewInvalidNameError", func(t *testing.T) {
		err := NewInvalidNameError("../x", "path traversal")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeInvalidName) {
			t.Errorf("Expected error code %s, got %s", ErrCodeInvalidName, err.ErrorCode())
		}
		if err.Context["provided_name"] != "../x" {
			t.Errorf("Expected provided_name context, got %v", err.Context["provided_name"])
		}
		if err.Severity != "error" {
			t.Errorf("Expected severity error, got %q", err.Severity)
		}
		if err.IsRetryable() {
			t.Error("Expected error to not be retryable")
		}
	})

	t.Run("NewDeployDisabledError", func(t *testing.T) {
		err := NewDeployDisabledError()
		expected := "Module deployment is disabled by configuration"
		if err.UserMessage() != expected {
			t.Errorf("Expected user message %q, got %q", expected, err.UserMessage())
		}
	})
}

func TestAccessErrorConstructors(t *testing.T) {
	t.Run("NewDomainNotAllowedError", func(t *testing.T) {
		err := NewDomainNotAllowedError("https://evil.test/p.zip", "evil.test")
		if err.Context["host"] != "evil.test" {
			t.Errorf("Expected host context, got %v", err.Context["host"])
		}
		if err.Context["source"] != "https://evil.test/p.zip" {
			t.Errorf("Expected source context, got %v", err.Context["source"])
		}
	})

	t.Run("NewFetchFailedError", func(t *testing.T) {
		cause := fmt.Errorf("connection reset")
		err := NewFetchFailedError("https://repo/p.zip", cause)
		if err.Cause == nil {
			t.Error("Expected cause to be preserved")
		}
		if !err.IsRetryable() {
			t.Error("Expected fetch failures to be retryable")
		}
	})
}

func TestExtractionAndLoadErrorConstructors(t *testing.T) {
	t.Run("NewIllegalEntryPathError", func(t *testing.T) {
		err := NewIllegalEntryPathError("p.zip", "../../etc/passwd")
		if err.Context["entry"] != "../../etc/passwd" {
			t.Errorf("Expected entry context, got %v", err.Context["entry"])
		}
	})

	t.Run("NewEntryNotResolvableError", func(t *testing.T) {
		err := NewEntryNotResolvableError("demo.Greeter", 3)
		if err.Context["entry"] != "demo.Greeter" {
			t.Errorf("Expected entry context, got %v", err.Context["entry"])
		}
		if err.Context["units_scanned"] != 3 {
			t.Errorf("Expected units_scanned 3, got %v", err.Context["units_scanned"])
		}
	})

	t.Run("NewUnitOpenError", func(t *testing.T) {
		err := NewUnitOpenError("lib/x.so", fmt.Errorf("bad ELF"))
		if err.Severity != "warning" {
			t.Errorf("Expected severity warning, got %q", err.Severity)
		}
	})
}

func TestLifecycleErrorConstructors(t *testing.T) {
	t.Run("NewServiceStartError", func(t *testing.T) {
		err := NewServiceStartError("demo", "greeter.service", fmt.Errorf("port in use"))
		if err.Context["module"] != "demo" || err.Context["service"] != "greeter.service" {
			t.Errorf("Unexpected context %v", err.Context)
		}
		if err.Cause == nil {
			t.Error("Expected cause to be preserved")
		}
	})

	t.Run("NewInvalidTransitionError", func(t *testing.T) {
		err := NewInvalidTransitionError("demo", StateUnloaded, StateStarting)
		if err.Context["from"] != "unloaded" || err.Context["to"] != "starting" {
			t.Errorf("Unexpected context %v", err.Context)
		}
	})

	t.Run("NewHookFailedError", func(t *testing.T) {
		err := NewHookFailedError("greeting", fmt.Errorf("nope"))
		if err.Severity != "warning" {
			t.Errorf("Expected severity warning, got %q", err.Severity)
		}
	})
}

func TestTransportAndPoolErrorConstructors(t *testing.T) {
	t.Run("NewRemoteFailureError", func(t *testing.T) {
		err := NewRemoteFailureError("n2", "Descriptor missing")
		if err.Context["node"] != "n2" {
			t.Errorf("Expected node context, got %v", err.Context["node"])
		}
		if err.ErrorCode() != errors.ErrorCode(ErrCodeRemoteFailure) {
			t.Errorf("Expected error code %s, got %s", ErrCodeRemoteFailure, err.ErrorCode())
		}
	})

	t.Run("NewPoolRejectedError", func(t *testing.T) {
		err := NewPoolRejectedError(fmt.Errorf("context deadline exceeded"))
		if !err.IsRetryable() {
			t.Error("Expected pool rejections to be retryable")
		}
	})
}
