package extract

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/flakewatch/flakewatch/internal/models"
)

const surefireOutput = `[INFO] Scanning for projects...
Running com.example.CartTest
Tests run: 4, Failures: 0, Errors: 0, Skipped: 0, Time elapsed: 1.25 s
Running com.example.CheckoutTest
testConcurrentCheckout(com.example.CheckoutTest)  Time elapsed: 2.31 s  <<< FAILURE!
java.lang.AssertionError: expected:<200> but was:<503>
	at com.example.CheckoutTest.testConcurrentCheckout(CheckoutTest.java:88)

testPaymentTimeout(com.example.CheckoutTest)  Time elapsed: 30.01 s  <<< ERROR!
java.net.SocketTimeoutException: Read timed out
	at java.net.SocketInputStream.read(SocketInputStream.java:170)

Tests run: 5, Failures: 1, Errors: 1, Skipped: 1, Time elapsed: 40.2 s
[INFO] BUILD FAILURE
`

const gotestOutput = `=== RUN   TestStore
--- PASS: TestStore (0.02s)
=== RUN   TestFetch
--- FAIL: TestFetch (1.50s)
    fetch_test.go:41: deadline exceeded waiting for response
=== RUN   TestCache
--- SKIP: TestCache (0.00s)
PASS
`

func TestSurefireParserExtractsFailuresAndPasses(t *testing.T) {
	outcomes := NewSurefireParser().Parse(surefireOutput)

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d: %+v", len(outcomes), outcomes)
	}

	if outcomes[0].TestID != "com.example.CartTest" || outcomes[0].Status != models.StatusPass {
		t.Fatalf("expected class-level pass for CartTest, got %+v", outcomes[0])
	}
	if outcomes[0].Duration != 1250*time.Millisecond {
		t.Fatalf("expected 1.25s duration, got %v", outcomes[0].Duration)
	}

	fail := outcomes[1]
	if fail.TestID != "com.example.CheckoutTest.testConcurrentCheckout" || fail.Status != models.StatusFail {
		t.Fatalf("unexpected failure outcome %+v", fail)
	}
	if !strings.Contains(fail.FailureSignature, "AssertionError") {
		t.Fatalf("expected stack fragment, got %q", fail.FailureSignature)
	}

	errOutcome := outcomes[2]
	if errOutcome.Status != models.StatusError {
		t.Fatalf("expected error status, got %s", errOutcome.Status)
	}
	if !strings.Contains(errOutcome.FailureSignature, "SocketTimeoutException") {
		t.Fatalf("expected timeout signature, got %q", errOutcome.FailureSignature)
	}
}

func TestGoTestParserExtractsOutcomes(t *testing.T) {
	outcomes := NewGoTestParser().Parse(gotestOutput)

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Status != models.StatusPass || outcomes[0].TestID != "TestStore" {
		t.Fatalf("unexpected first outcome %+v", outcomes[0])
	}
	if outcomes[1].Status != models.StatusFail {
		t.Fatalf("expected failure, got %+v", outcomes[1])
	}
	if !strings.Contains(outcomes[1].FailureSignature, "deadline exceeded") {
		t.Fatalf("expected failure signature, got %q", outcomes[1].FailureSignature)
	}
	if outcomes[2].Status != models.StatusSkipped {
		t.Fatalf("expected skip, got %+v", outcomes[2])
	}
}

func TestExtractorIdempotentAndOrderPreserving(t *testing.T) {
	extractor := NewExtractor()

	first := extractor.Extract(surefireOutput + gotestOutput)
	second := extractor.Extract(surefireOutput + gotestOutput)

	if len(first) == 0 {
		t.Fatalf("expected outcomes from combined output")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("extraction not idempotent")
	}
}

func TestExtractorUnrecognisedOutput(t *testing.T) {
	extractor := NewExtractor()

	outcomes := extractor.Extract("complete nonsense\nno test lines here\n")
	if len(outcomes) != 0 {
		t.Fatalf("expected zero outcomes for unrecognised output, got %d", len(outcomes))
	}
	if outcomes := extractor.Extract(""); outcomes != nil {
		t.Fatalf("expected nil for empty output")
	}
}
