package regnum

const (
	ARM64_X0   = 0 // X1 through X30 follow
	ARM64_X19  = 19
	ARM64_BP   = 29 // also X29
	ARM64_LR   = 30 // also X30
	ARM64_SP   = 31
	ARM64_PC   = 32
	ARM64_CPSR = 33
	ARM64_V0   = 34 // V1 through V31 follow
	ARM64_FPSR = 66
	ARM64_FPCR = 67

	arm64NumRegs = 68
)

var arm64Names = func() table {
	t := make(table, arm64NumRegs)
	seq(t, ARM64_X0, 31, 0, "X%d")
	t[ARM64_SP] = "SP"
	t[ARM64_PC] = "PC"
	t[ARM64_CPSR] = "CPSR"
	seq(t, ARM64_V0, 32, 0, "V%d")
	t[ARM64_FPSR] = "FPSR"
	t[ARM64_FPCR] = "FPCR"
	return t
}()

// ARM64NameToNum maps lower case register names to AArch64 register numbers.
var ARM64NameToNum = arm64Names.nameToNum()

func ARM64MaxRegNum() int {
	return arm64NumRegs - 1
}

func ARM64ToName(num int) string {
	return arm64Names.name(num)
}
