package flow

import "testing"

func TestValidateReflectionRefusals(t *testing.T) {
	for _, refusal := range []string{"не", "нет", "да", "не знаю", " Нет ", "НЕ ЗНАЮ"} {
		ok, reply := ValidateReflection(refusal)
		if ok {
			t.Errorf("refusal %q must be rejected", refusal)
		}
		if reply == "" {
			t.Errorf("refusal %q must get an elaboration prompt", refusal)
		}
	}
}

func TestValidateReflectionTooShort(t *testing.T) {
	ok, reply := ValidateReflection("плохо 123!!!")
	if ok {
		t.Error("answers with fewer than 10 letters must be rejected")
	}
	if reply == "" {
		t.Error("too-short answers must get a prompt")
	}
}

func TestValidateReflectionAccepts(t *testing.T) {
	ok, reply := ValidateReflection("Я заметил, что тревога усиливается по вечерам")
	if !ok {
		t.Errorf("substantive answer must pass, got prompt %q", reply)
	}
}
