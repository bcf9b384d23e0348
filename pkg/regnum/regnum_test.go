package regnum

import "testing"

func TestNames(t *testing.T) {
	tests := []struct {
		toName func(int) string
		num    int
		want   string
	}{
		{ARMToName, ARM_R5, "R5"},
		{ARMToName, ARM_PC, "PC"},
		{ARMToName, ARM_CPSR, "CPSR"},
		{ARMToName, ARM_D0 + 31, "D31"},
		{ARM64ToName, ARM64_X19, "X19"},
		{ARM64ToName, ARM64_V0 + 2, "V2"},
		{I386ToName, I386_Eflags, "Eflags"},
		{I386ToName, I386_YMM0H + 7, "YMM7H"},
		{AMD64ToName, AMD64_R8 + 7, "R15"},
		{AMD64ToName, AMD64_ST0 + 3, "ST(3)"},
		{AMD64ToName, 1000, "unknown1000"},
		{ARMToName, -1, "unknown-1"},
	}
	for _, tc := range tests {
		if got := tc.toName(tc.num); got != tc.want {
			t.Errorf("name of %d: got %q, want %q", tc.num, got, tc.want)
		}
	}
}

func TestNameToNum(t *testing.T) {
	if n, ok := AMD64NameToNum["r15"]; !ok || n != AMD64_R8+7 {
		t.Errorf("r15: got %d %v", n, ok)
	}
	if n := AMD64NameToNum["eflags"]; n != AMD64_Rflags {
		t.Errorf("eflags: got %d", n)
	}
	if n := I386NameToNum["st4"]; n != I386_ST0+4 {
		t.Errorf("st4: got %d", n)
	}
	if n := ARMNameToNum["cpsr"]; n != ARM_CPSR {
		t.Errorf("cpsr: got %d", n)
	}
	if _, ok := ARM64NameToNum["x31"]; ok {
		t.Errorf("x31 should not exist, SP takes its slot")
	}
}
