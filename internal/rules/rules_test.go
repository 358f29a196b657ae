package rules

import (
	"testing"

	"github.com/vosbek/codeatlas/internal/jparse"
)

func methodOf(t *testing.T, src, name string) (*jparse.Type, *jparse.Method) {
	t.Helper()
	tree, _ := jparse.ParseFile("T.java", []byte(src))
	if len(tree.Types) != 1 {
		t.Fatalf("types = %+v", tree.Types)
	}
	m := tree.Types[0].MethodNamed(name)
	if m == nil {
		t.Fatalf("method %s not found", name)
	}
	return tree.Types[0], m
}

func TestExtractValidationWithConstant(t *testing.T) {
	src := `package com.example;

public class PaymentValidator {
    private static final double MAX_AMOUNT = 10000.0;
    private double amount;

    public void check() {
        if (amount > MAX_AMOUNT) {
            throw new ValidationException("too large");
        }
    }
}
`
	typ, m := methodOf(t, src, "check")
	out := Extract("PaymentValidator.java", typ, m)
	if len(out) != 1 {
		t.Fatalf("rules = %+v", out)
	}
	r := out[0]
	if r.Kind != KindValidation {
		t.Fatalf("kind = %s", r.Kind)
	}
	// comparison + named constant + field operand + guarded throw
	if len(r.Signals) != 4 {
		t.Fatalf("signals = %v", r.Signals)
	}
	if r.Confidence <= 0.4 || r.LowConfidence {
		t.Fatalf("confidence = %v low = %v", r.Confidence, r.LowConfidence)
	}
	if r.TypeQN != "com.example.PaymentValidator" || r.MethodName != "check" {
		t.Fatalf("rule = %+v", r)
	}
}

func TestExtractSpansMultilineSignature(t *testing.T) {
	src := `package com.example;

public class FeeCalc {
    private static final double LIMIT = 500.0;
    private double amount;

    public void apply(double candidate,
            double rate,
            boolean strict) {
        if (candidate > LIMIT) {
            throw new IllegalArgumentException("over limit");
        }
    }
}
`
	typ, m := methodOf(t, src, "apply")
	out := Extract("FeeCalc.java", typ, m)
	if len(out) != 1 {
		t.Fatalf("rules = %+v", out)
	}
	// The if sits on line 10; a span counted from the declaration line
	// would land two lines early.
	if out[0].StartLine != 10 {
		t.Fatalf("start = %d", out[0].StartLine)
	}
}

func TestExtractWeakSignalFlaggedNotDropped(t *testing.T) {
	src := `package com.example;

public class Misc {
    public void run(int x, int y) {
        if (x > y) {
            log(x);
        }
    }
}
`
	typ, m := methodOf(t, src, "run")
	out := Extract("Misc.java", typ, m)
	if len(out) != 1 {
		t.Fatalf("rules = %+v", out)
	}
	r := out[0]
	if !r.LowConfidence {
		t.Fatalf("weak rule not flagged: %+v", r)
	}
	if r.Confidence > 0.4 || r.Confidence <= 0 {
		t.Fatalf("confidence = %v", r.Confidence)
	}
}

func TestExtractCalculationIntoField(t *testing.T) {
	src := `package com.example;

public class Invoice {
    private static final double TAX_RATE = 0.19;
    private double total;

    public void applyTax(double net) {
        this.total = net * TAX_RATE;
    }
}
`
	typ, m := methodOf(t, src, "applyTax")
	out := Extract("Invoice.java", typ, m)
	if len(out) != 1 || out[0].Kind != KindCalculation {
		t.Fatalf("rules = %+v", out)
	}
	r := out[0]
	has := map[string]bool{}
	for _, s := range r.Signals {
		has[s] = true
	}
	if !has["field_target"] || !has["named_constant"] {
		t.Fatalf("signals = %v", r.Signals)
	}
	if r.LowConfidence {
		t.Fatalf("calculation with 3 signals flagged low: %+v", r)
	}
}

func TestExtractWorkflowGated(t *testing.T) {
	src := `package com.example;

public class OrderFlow {
    public void finish(Order order) {
        if (order.isValid()) {
            orderDao.saveOrder(order);
        }
    }
}
`
	typ, m := methodOf(t, src, "finish")
	var workflows []Rule
	for _, r := range Extract("OrderFlow.java", typ, m) {
		if r.Kind == KindWorkflow {
			workflows = append(workflows, r)
		}
	}
	if len(workflows) != 1 {
		t.Fatalf("workflow rules = %+v", workflows)
	}
	has := map[string]bool{}
	for _, s := range workflows[0].Signals {
		has[s] = true
	}
	if !has["condition_gated"] {
		t.Fatalf("signals = %v", workflows[0].Signals)
	}
}

func TestExtractEmptyBody(t *testing.T) {
	src := `package com.example;

public class Quiet {
    public void nothing() {
    }
}
`
	typ, m := methodOf(t, src, "nothing")
	if out := Extract("Quiet.java", typ, m); len(out) != 0 {
		t.Fatalf("rules = %+v", out)
	}
}

func TestConfidenceMonotoneAndClamped(t *testing.T) {
	prev := 0.0
	for n := 1; n <= 6; n++ {
		c := confidence(KindValidation, n)
		if c < prev {
			t.Fatalf("confidence not monotone at %d signals: %v < %v", n, c, prev)
		}
		if c < 0 || c > 1 {
			t.Fatalf("confidence out of range: %v", c)
		}
		prev = c
	}
	if confidence(KindValidation, 1) > lowConfidenceCeiling {
		t.Fatal("single-signal validation should be low confidence")
	}
}
