package regnum

const (
	I386_Eax    = 0
	I386_Ecx    = 1
	I386_Edx    = 2
	I386_Ebx    = 3
	I386_Esp    = 4
	I386_Ebp    = 5
	I386_Esi    = 6
	I386_Edi    = 7
	I386_Eip    = 8
	I386_Eflags = 9
	I386_Cs     = 10
	I386_Ss     = 11
	I386_Ds     = 12
	I386_Es     = 13
	I386_Fs     = 14
	I386_Gs     = 15
	I386_ST0    = 16 // ST(1) through ST(7) follow
	I386_FCTRL  = 24
	I386_FSTAT  = 25
	I386_FTAG   = 26
	I386_FISEG  = 27
	I386_FIOFF  = 28
	I386_FOSEG  = 29
	I386_FOOFF  = 30
	I386_FOP    = 31
	I386_XMM0   = 32 // XMM1 through XMM7 follow
	I386_MXCSR  = 40
	I386_YMM0H  = 41 // YMM1H through YMM7H follow

	i386NumRegs = 49
)

var i386Names = func() table {
	t := make(table, i386NumRegs)
	copy(t, []string{"Eax", "Ecx", "Edx", "Ebx", "Esp", "Ebp", "Esi", "Edi", "Eip", "Eflags", "Cs", "Ss", "Ds", "Es", "Fs", "Gs"})
	seq(t, I386_ST0, 8, 0, "ST(%d)")
	copy(t[I386_FCTRL:], []string{"FCTRL", "FSTAT", "FTAG", "FISEG", "FIOFF", "FOSEG", "FOOFF", "FOP"})
	seq(t, I386_XMM0, 8, 0, "XMM%d")
	t[I386_MXCSR] = "MXCSR"
	seq(t, I386_YMM0H, 8, 0, "YMM%dH")
	return t
}()

// I386NameToNum maps lower case register names to i386 register numbers.
var I386NameToNum = func() map[string]int {
	r := i386Names.nameToNum()
	addSTAliases(r, I386_ST0)
	return r
}()

func I386MaxRegNum() int {
	return i386NumRegs - 1
}

func I386ToName(num int) string {
	return i386Names.name(num)
}
