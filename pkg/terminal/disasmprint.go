package terminal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/go-delve/ntotdep/pkg/proc"
)

// disasmPrint prints the instructions in dv, marking the one at pc.
func disasmPrint(t *Term, dv []*proc.AsmInstruction, pc uint64, out io.Writer) {
	bw := bufio.NewWriter(out)
	defer bw.Flush()
	tw := tabwriter.NewWriter(bw, 1, 8, 1, '\t', 0)
	defer tw.Flush()
	for _, inst := range dv {
		atpc := ""
		if inst.PC == pc {
			atpc = "=>"
		}
		loc := "??"
		if fn := t.symbols.PCToFunc(inst.PC); fn != nil {
			loc = fmt.Sprintf("%s+%#x", fn.Name, inst.PC-fn.Entry)
		}
		fmt.Fprintf(tw, "%s\t%s\t%#x\t%x\t%s\n", atpc, loc, inst.PC, inst.Bytes, inst.Text)
	}
}

// prettyExamineMemory formats memArea, read at address, in rows of
// columns of size bytes each.
func prettyExamineMemory(address uint64, memArea []byte, bo binary.ByteOrder, format byte, size int) string {
	var (
		cols      int
		colFormat string
		colBytes  = size

		addrLen int
		addrFmt string
	)

	switch format {
	case 'b':
		cols = 4 // Avoid emitting rows that are too long when using binary format
		colFormat = fmt.Sprintf("%%0%db", colBytes*8)
	case 'o':
		cols = 8
		colFormat = fmt.Sprintf("0%%0%do", colBytes*3) // Always keep one leading zero for octal.
	case 'd':
		cols = 8
		colFormat = fmt.Sprintf("%%0%dd", colBytes*3)
	case 'x':
		cols = 8
		colFormat = fmt.Sprintf("0x%%0%dx", colBytes*2) // Always keep one leading '0x' for hex.
	default:
		return fmt.Sprintf("not supported format %q\n", string(format))
	}
	colFormat += "\t"

	l := len(memArea)
	rows := l / (cols * colBytes)
	if l%(cols*colBytes) != 0 {
		rows++
	}

	// Use the length of the last address for every row.
	if l != 0 {
		addrLen = len(fmt.Sprintf("%x", address+uint64(l)))
	}
	addrFmt = "0x%0" + strconv.Itoa(addrLen) + "x:\t"

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 3, ' ', 0)

	for i := 0; i < rows; i++ {
		fmt.Fprintf(w, addrFmt, address)

		for j := 0; j < cols; j++ {
			offset := i*(cols*colBytes) + j*colBytes
			if offset+colBytes <= len(memArea) {
				fmt.Fprintf(w, colFormat, readUint(memArea[offset:offset+colBytes], bo))
			}
		}
		fmt.Fprintln(w, "")
		address += uint64(cols * colBytes)
	}
	w.Flush()
	return b.String()
}

// readUint decodes b, between 1 and 8 bytes long, in byte order bo.
func readUint(b []byte, bo binary.ByteOrder) uint64 {
	var buf [8]byte
	if bo == binary.BigEndian {
		copy(buf[8-len(b):], b)
		return binary.BigEndian.Uint64(buf[:])
	}
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}
