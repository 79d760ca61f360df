package device

// SSD1351 command set
const (
	cmdSetColumn      byte = 0x15
	cmdWriteRAM       byte = 0x5C
	cmdSetRow         byte = 0x75
	cmdSetRemap       byte = 0xA0
	cmdStartLine      byte = 0xA1
	cmdDisplayOffset  byte = 0xA2
	cmdNormalDisplay  byte = 0xA6
	cmdFunctionSelect byte = 0xAB
	cmdDisplayOff     byte = 0xAE
	cmdDisplayOn      byte = 0xAF
	cmdPrecharge      byte = 0xB1
	cmdClockDiv       byte = 0xB3
	cmdSetVSL         byte = 0xB4
	cmdSetGPIO        byte = 0xB5
	cmdPrecharge2     byte = 0xB6
	cmdVCOMH          byte = 0xBE
	cmdContrastABC    byte = 0xC1
	cmdContrastMaster byte = 0xC7
	cmdMuxRatio       byte = 0xCA
	cmdCommandLock    byte = 0xFD
)

type command struct {
	code   byte
	params []byte
}

// initSequence brings the controller out of reset into 65k color mode, with
// the panel still off. Contrast and display on are sent by Display.Init.
var initSequence = []command{
	{cmdCommandLock, []byte{0x12}},
	{cmdCommandLock, []byte{0xB1}},
	{cmdDisplayOff, nil},
	{cmdClockDiv, []byte{0xF1}},
	{cmdMuxRatio, []byte{0x7F}},
	// 65k colors, COM split, scan from COM127
	{cmdSetRemap, []byte{0x74}},
	{cmdSetColumn, []byte{0x00, 0x7F}},
	{cmdSetRow, []byte{0x00, 0x7F}},
	{cmdStartLine, []byte{0x00}},
	{cmdDisplayOffset, []byte{0x00}},
	{cmdSetGPIO, []byte{0x00}},
	{cmdFunctionSelect, []byte{0x01}},
	{cmdPrecharge, []byte{0x32}},
	{cmdVCOMH, []byte{0x05}},
	{cmdNormalDisplay, nil},
	{cmdContrastMaster, []byte{0x0F}},
	{cmdSetVSL, []byte{0xA0, 0xB5, 0x55}},
	{cmdPrecharge2, []byte{0x01}},
}
