package vault

import "testing"

func TestEncodeContextIsStable(t *testing.T) {
	aad := map[string]string{"user_id": "u1", "decision_id": "d1", "field": "dietary"}

	want := "decision_id=d1;field=dietary;user_id=u1;"
	for i := 0; i < 10; i++ {
		if got := encodeContext(aad); got != want {
			t.Fatalf("encodeContext() = %q, expected %q", got, want)
		}
	}
}
