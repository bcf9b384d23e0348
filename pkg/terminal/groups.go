package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	threadCmds
	stackCmds
	dataCmds
	imageCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Listing and switching between threads", threadCmds},
	{"Viewing the call stack and selecting frames", stackCmds},
	{"Viewing registers and memory", dataCmds},
	{"Inspecting the process image", imageCmds},
	{"Other commands", otherCmds},
}
