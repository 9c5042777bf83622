package symbols

import "testing"

func TestDefaultIsACopy(t *testing.T) {
	a := Default()
	if len(a) != 28 {
		t.Fatalf("len(Default()) = %d, want 28", len(a))
	}
	if a[0] != "BTCUSDT" || a[len(a)-1] != "FILUSDT" {
		t.Fatalf("unexpected order: first=%s last=%s", a[0], a[len(a)-1])
	}
	a[0] = "MUTATED"
	if Default()[0] != "BTCUSDT" {
		t.Fatalf("Default shares its backing array")
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("default list invalid: %v", err)
	}
}

func TestParse(t *testing.T) {
	got := Parse(" btcusdt, ETHUSDT ,,SOLUSDT ")
	want := []string{"btcusdt", "ETHUSDT", "SOLUSDT"}
	if len(got) != len(want) {
		t.Fatalf("Parse = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Parse[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		wantErr bool
	}{
		{"ok", []string{"BTCUSDT", "ETHUSDT"}, false},
		{"empty", nil, true},
		{"blank", []string{"BTCUSDT", " "}, true},
		{"padded", []string{" BTCUSDT"}, true},
		{"duplicate", []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"}, true},
	}
	for _, tt := range tests {
		err := Validate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate(%v) err=%v, wantErr=%v", tt.name, tt.in, err, tt.wantErr)
		}
	}
}
