package types

type HeatControlType string

var HeatControlTypeThermiaGenesis = HeatControlType("thermiagenesis")
var HeatControlTypeHogforsGST = HeatControlType("hogforsgst")
var HeatControlTypeDummy = HeatControlType("dummy")

type BatteryType string

var BatteryTypeKostalBYD = BatteryType("kostalbyd")
var BatteryTypeDummy = BatteryType("dummy")

type PVType string

var PVTypeSolarprognose = PVType("solarprognose")
var PVTypeFile = PVType("file")

type PriceType string

var PriceTypeAwattar = PriceType("awattar")
var PriceTypeFile = PriceType("file")

type TempType string

var TempTypeOpenMeteo = TempType("openmeteo")
var TempTypeFile = TempType("file")

type BEVType string

var BEVTypeDIY = BEVType("diy")
var BEVTypeDummy = BEVType("dummy")

type MeterType string

var MeterTypeMbus = MeterType("mbus")
