package container

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteHex32 transcribes src as an ASCII C array: each little-endian
// 32-bit word printed as "0x%X,", with a newline after every 16 words
// and after any word whose low byte is '.'. A trailing tail shorter
// than a word is zero-padded. The result is no longer a valid pack.
func WriteHex32(dst io.Writer, src io.Reader) error {
	w := bufio.NewWriter(dst)
	buf := make([]byte, 64<<10)
	var tail [4]byte
	tailLen := 0
	words := 0

	emit := func(word uint32) error {
		if _, err := fmt.Fprintf(w, "0x%X,", word); err != nil {
			return err
		}
		words++
		if words%16 == 0 || word&0xFF == '.' {
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		n, err := src.Read(buf)
		p := buf[:n]
		if tailLen > 0 && n > 0 {
			for len(p) > 0 && tailLen < 4 {
				tail[tailLen] = p[0]
				tailLen++
				p = p[1:]
			}
			if tailLen == 4 {
				if eerr := emit(binary.LittleEndian.Uint32(tail[:])); eerr != nil {
					return eerr
				}
				tailLen = 0
			}
		}
		for len(p) >= 4 {
			if eerr := emit(binary.LittleEndian.Uint32(p)); eerr != nil {
				return eerr
			}
			p = p[4:]
		}
		tailLen += copy(tail[tailLen:], p)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	if tailLen > 0 {
		for i := tailLen; i < 4; i++ {
			tail[i] = 0
		}
		if err := emit(binary.LittleEndian.Uint32(tail[:])); err != nil {
			return err
		}
	}
	return w.Flush()
}
