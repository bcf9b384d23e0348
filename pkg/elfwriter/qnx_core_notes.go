package elfwriter

import "debug/elf"

// Notes of QNX Neutrino core files. All of them are named QNXNoteName and
// their descriptors are in target byte order.
const (
	QNXNoteName = "QNX"

	QNXCoreInfoNoteType   elf.NType = 7  // process: pid, current tid, signal, flags
	QNXCoreStatusNoteType elf.NType = 8  // starts a thread: tid, flags, why, what
	QNXCoreGRegNoteType   elf.NType = 9  // general registers of the last thread
	QNXCoreFPRegNoteType  elf.NType = 10 // floating point registers of the last thread
	QNXLinkMapNoteType    elf.NType = 11 // serialized link map
)
