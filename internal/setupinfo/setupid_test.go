package setupinfo

import "testing"

func TestValidateSetupIDAccepts(t *testing.T) {
	cases := []string{"ABCD", "0123", "A1B2", "ZZZZ"}
	for _, c := range cases {
		if !ValidateSetupID(c) {
			t.Errorf("ValidateSetupID(%q) = false, want true", c)
		}
	}
}

func TestValidateSetupIDRejects(t *testing.T) {
	cases := []string{"", "ABC", "ABCDE", "abcd", "AB-D", "AB_D"}
	for _, c := range cases {
		if ValidateSetupID(c) {
			t.Errorf("ValidateSetupID(%q) = true, want false", c)
		}
	}
}

func TestGenerateRandomSetupIDIsValid(t *testing.T) {
	for i := 0; i < 50; i++ {
		id, err := GenerateRandomSetupID()
		if err != nil {
			t.Fatalf("GenerateRandomSetupID: %v", err)
		}
		if !ValidateSetupID(id) {
			t.Fatalf("GenerateRandomSetupID produced an invalid ID: %q", id)
		}
	}
}
