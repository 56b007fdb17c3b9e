package svf

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// File is a parsed SVF document.
type File struct {
	Commands []*Command `@@*`
}

// Command is one SVF statement.
type Command struct {
	Pos lexer.Position

	Scan      *Scan      `(  @@`
	RunTest   *RunTest   ` | @@`
	State     *StatePath ` | @@`
	End       *EndState  ` | @@`
	TRST      *TRST      ` | @@`
	Frequency *Frequency ` | @@ )`
}

// Scan is an SIR, SDR or one of the header/trailer statements.
// Example: SDR 32 TDI (00000000) TDO (10001001) MASK (FFFFFFFF);
type Scan struct {
	Kind   string       `@( "SIR" | "SDR" | "HIR" | "TIR" | "HDR" | "TDR" )`
	Length int          `@Number`
	Fields []*ScanField `@@* ";"`
}

// ScanField is a TDI, TDO, MASK or SMASK operand.
type ScanField struct {
	Name  string `@( "TDI" | "TDO" | "MASK" | "SMASK" )`
	Value string `@Hex`
}

// RunTest holds the TAP in a stable state for a number of clocks or a time.
// Example: RUNTEST IDLE 100 TCK ENDSTATE IDLE;
type RunTest struct {
	RunState string   `"RUNTEST" @( "RESET" | "IDLE" | "DRPAUSE" | "IRPAUSE" )?`
	Count    float64  `@Number`
	Unit     string   `@( "TCK" | "SCK" | "SEC" )`
	MinTime  *float64 `( @Number "SEC"`
	MaxTime  *float64 `  ( "MAXIMUM" @Number "SEC" )? )?`
	EndState string   `( "ENDSTATE" @( "RESET" | "IDLE" | "DRPAUSE" | "IRPAUSE" ) )? ";"`
}

// StatePath walks the TAP through the listed states.
type StatePath struct {
	States []string `"STATE" @Ident+ ";"`
}

// EndState sets the state reached after SIR or SDR.
type EndState struct {
	Kind  string `@( "ENDIR" | "ENDDR" )`
	State string `@Ident ";"`
}

// TRST drives the optional test reset line.
type TRST struct {
	Mode string `"TRST" @( "ON" | "OFF" | "Z" | "ABSENT" ) ";"`
}

// Frequency sets the TCK rate. Without a value the adapter runs at full speed.
type Frequency struct {
	Hz *float64 `"FREQUENCY" ( @Number "HZ" )? ";"`
}
