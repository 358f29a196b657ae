package diag

import "testing"

func TestSummarizeCountsAndSample(t *testing.T) {
	diags := []Diagnostic{
		Infof(CategoryParse, "A.java", "one"),
		Infof(CategoryParse, "B.java", "two"),
		Warnf(CategoryParse, "C.java", "three"),
		Errorf(CategoryParse, "D.java", "four"),
		Warnf(CategoryDiscovery, "", "five"),
	}
	r := Summarize(diags, 2)
	if r.Total != 5 {
		t.Fatalf("total = %d", r.Total)
	}
	if r.CountsBySeverity[SeverityInfo] != 2 || r.CountsBySeverity[SeverityWarning] != 2 || r.CountsBySeverity[SeverityError] != 1 {
		t.Fatalf("counts = %+v", r.CountsBySeverity)
	}

	sample := r.SampleByCategory[CategoryParse]
	if len(sample) != 2 {
		t.Fatalf("sample = %+v", sample)
	}
	// Worst first: the error displaces infos from the bounded sample.
	if sample[0].Severity != SeverityError || sample[1].Severity != SeverityWarning {
		t.Fatalf("sample = %+v", sample)
	}
	if len(r.SampleByCategory[CategoryDiscovery]) != 1 {
		t.Fatalf("discovery sample = %+v", r.SampleByCategory[CategoryDiscovery])
	}
}

func TestSummarizeDefaultSample(t *testing.T) {
	var diags []Diagnostic
	for i := 0; i < 10; i++ {
		diags = append(diags, Infof(CategoryWalk, "f", "msg %d", i))
	}
	r := Summarize(diags, 0)
	if len(r.SampleByCategory[CategoryWalk]) != 5 {
		t.Fatalf("sample = %d", len(r.SampleByCategory[CategoryWalk]))
	}
}

func TestCountErrors(t *testing.T) {
	diags := []Diagnostic{
		Infof(CategoryParse, "", "a"),
		Errorf(CategoryParse, "", "b"),
		Errorf(CategoryGraphEmit, "", "c"),
	}
	if n := CountErrors(diags); n != 2 {
		t.Fatalf("n = %d", n)
	}
}

func TestNewCarriesLine(t *testing.T) {
	d := New(SeverityWarning, CategoryParse, "X.java", 42, "bad %s", "token")
	if d.Line != 42 || d.Message != "bad token" || d.FilePath != "X.java" {
		t.Fatalf("d = %+v", d)
	}
}
