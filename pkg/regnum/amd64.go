package regnum

const (
	AMD64_Rax    = 0
	AMD64_Rbx    = 1
	AMD64_Rcx    = 2
	AMD64_Rdx    = 3
	AMD64_Rsi    = 4
	AMD64_Rdi    = 5
	AMD64_Rbp    = 6
	AMD64_Rsp    = 7
	AMD64_R8     = 8 // R9 through R15 follow
	AMD64_Rip    = 16
	AMD64_Rflags = 17
	AMD64_Cs     = 18
	AMD64_Ss     = 19
	AMD64_Ds     = 20
	AMD64_Es     = 21
	AMD64_Fs     = 22
	AMD64_Gs     = 23
	AMD64_ST0    = 24 // ST(1) through ST(7) follow
	AMD64_FCTRL  = 32
	AMD64_FSTAT  = 33
	AMD64_FTAG   = 34
	AMD64_FISEG  = 35
	AMD64_FIOFF  = 36
	AMD64_FOSEG  = 37
	AMD64_FOOFF  = 38
	AMD64_FOP    = 39
	AMD64_XMM0   = 40 // XMM1 through XMM15 follow
	AMD64_MXCSR  = 56
	AMD64_YMM0H  = 57 // YMM1H through YMM15H follow

	amd64NumRegs = 73
)

var amd64Names = func() table {
	t := make(table, amd64NumRegs)
	copy(t, []string{"Rax", "Rbx", "Rcx", "Rdx", "Rsi", "Rdi", "Rbp", "Rsp"})
	seq(t, AMD64_R8, 8, 8, "R%d")
	copy(t[AMD64_Rip:], []string{"Rip", "Rflags", "Cs", "Ss", "Ds", "Es", "Fs", "Gs"})
	seq(t, AMD64_ST0, 8, 0, "ST(%d)")
	copy(t[AMD64_FCTRL:], []string{"FCTRL", "FSTAT", "FTAG", "FISEG", "FIOFF", "FOSEG", "FOOFF", "FOP"})
	seq(t, AMD64_XMM0, 16, 0, "XMM%d")
	t[AMD64_MXCSR] = "MXCSR"
	seq(t, AMD64_YMM0H, 16, 0, "YMM%dH")
	return t
}()

// AMD64NameToNum maps lower case register names to x86_64 register numbers.
var AMD64NameToNum = func() map[string]int {
	r := amd64Names.nameToNum()
	r["eflags"] = AMD64_Rflags
	addSTAliases(r, AMD64_ST0)
	return r
}()

func AMD64MaxRegNum() int {
	return amd64NumRegs - 1
}

func AMD64ToName(num int) string {
	return amd64Names.name(num)
}
