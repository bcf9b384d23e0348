package regnum

const (
	ARM_R0    = 0  // R1 through R12 follow
	ARM_R5    = 5
	ARM_FP    = 11 // also R11
	ARM_SP    = 13
	ARM_LR    = 14
	ARM_PC    = 15
	ARM_F0    = 16 // legacy FPA registers, F1 through F7 follow
	ARM_FPS   = 24
	ARM_CPSR  = 25
	ARM_D0    = 26 // D1 through D31 follow
	ARM_FPSCR = 58
	ARM_FPEXC = 59

	armNumRegs = 60
)

var armNames = func() table {
	t := make(table, armNumRegs)
	seq(t, ARM_R0, 13, 0, "R%d")
	t[ARM_SP] = "SP"
	t[ARM_LR] = "LR"
	t[ARM_PC] = "PC"
	seq(t, ARM_F0, 8, 0, "F%d")
	t[ARM_FPS] = "FPS"
	t[ARM_CPSR] = "CPSR"
	seq(t, ARM_D0, 32, 0, "D%d")
	t[ARM_FPSCR] = "FPSCR"
	t[ARM_FPEXC] = "FPEXC"
	return t
}()

// ARMNameToNum maps lower case register names to ARM register numbers.
var ARMNameToNum = armNames.nameToNum()

// ARMMaxRegNum returns the highest ARM register number.
func ARMMaxRegNum() int {
	return armNumRegs - 1
}

func ARMToName(num int) string {
	return armNames.name(num)
}
