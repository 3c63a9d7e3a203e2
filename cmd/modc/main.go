package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/nergy-se/energymanager/pkg/modbusclient"
)

var decimals = flag.Int("decimals", 2, "")
var readCount = flag.Uint("read-count", 1, "how many addreses to read")

// modc reads or writes single modbus addresses, for finding registers on new devices.
func main() {
	address := flag.String("addr", "", "tcp modbus address")

	inputreg := flag.Int("inputreg", 0, "input reg")
	discreteInput := flag.Int("discreteinputreg", 0, "descrete input reg")
	holdingreg := flag.Int("holdingreg", 0, "")
	float32reg := flag.Int("float32reg", 0, "float32 holding register pair, low word first")
	coil := flag.Int("coil", 0, "")

	slaveID := flag.Int("slave", 0, "modbus slave id")
	value := flag.Int("value", 0, "value to write. will write any value")
	floatValue := flag.Float64("float", 0, "float value to write to float32reg")
	flag.Parse()

	client := modbusclient.NewTCP(*address, byte(*slaveID), 5*time.Second)

	var f interface{}
	var err error
	switch {
	case isFlagPassed("inputreg"):
		f, err = scale(client.ReadInputRegister(uint16(*inputreg)))
	case isFlagPassed("holdingreg") && isFlagPassed("value"):
		f, err = client.WriteSingleRegister(uint16(*holdingreg), uint16(*value))
	case isFlagPassed("holdingreg"):
		var b []byte
		b, err = client.ReadHoldingRegisters(uint16(*holdingreg), uint16(*readCount))
		fmt.Printf("raw response: %# x (length: %d)\n", b, len(b))
		f, err = scale(modbusclient.Decode(b), err)
	case isFlagPassed("float32reg") && isFlagPassed("float"):
		err = client.WriteFloat32(uint16(*float32reg), *floatValue)
		f = *floatValue
	case isFlagPassed("float32reg"):
		f, err = client.ReadFloat32(uint16(*float32reg))
	case isFlagPassed("coil"):
		// 0xff00 (65280) switches on
		f, err = client.WriteSingleCoil(uint16(*coil), uint16(*value))
	case isFlagPassed("discreteinputreg"):
		f, err = client.ReadDiscreteInputs(uint16(*discreteInput), uint16(*readCount))
	default:
		flag.Usage()
		return
	}

	if err != nil {
		log.Println("error was: ", err)
	}
	if v, ok := f.([]byte); ok {
		fmt.Printf("raw response: %# x (length: %d)\n", v, len(v))
	}
	log.Println("value is: ", f)
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func scale(i int, err error) (float64, error) {
	f := float64(i)
	for n := 0; n < *decimals; n++ {
		f /= 10
	}
	return f, err
}
