package domain

import "strings"

// Canonical parameter names. Internal entities, guideline keys and feature maps
// always use these.
const (
	ParamTemperature     = "temperature"
	ParamDissolvedOxygen = "dissolved_oxygen"
	ParamPH              = "ph"
	ParamConductivity    = "conductivity"
	ParamBOD             = "bod"
	ParamNitrate         = "nitrate"
	ParamFecalColiform   = "fecal_coliform"
	ParamTotalColiform   = "total_coliform"

	FieldLatitude  = "latitude"
	FieldLongitude = "longitude"
)

// FeatureOrder is the fixed parameter set fed to the predictor, in order.
var FeatureOrder = []string{
	ParamTemperature,
	ParamDissolvedOxygen,
	ParamPH,
	ParamConductivity,
	ParamBOD,
	ParamNitrate,
	ParamFecalColiform,
	ParamTotalColiform,
}

// ParameterAlias pairs a canonical name with the name used by the sample
// dataset and model pipeline, plus any other spellings accepted on input.
type ParameterAlias struct {
	Canonical string
	External  string
	Others    []string
}

// ParameterAliases is the boundary name-mapping table.
var ParameterAliases = []ParameterAlias{
	{Canonical: ParamTemperature, External: "Temperature"},
	{Canonical: ParamDissolvedOxygen, External: "D.O", Others: []string{"DO", "D_O", "dissolvedoxygen"}},
	{Canonical: ParamPH, External: "pH"},
	{Canonical: ParamConductivity, External: "Conductivity"},
	{Canonical: ParamBOD, External: "B.O.D", Others: []string{"B_O_D"}},
	{Canonical: ParamNitrate, External: "Nitrate"},
	{Canonical: ParamFecalColiform, External: "Fecalcaliform", Others: []string{"fecalcoliform"}},
	{Canonical: ParamTotalColiform, External: "Totalcaliform", Others: []string{"totalcoliform"}},
	{Canonical: FieldLatitude, External: "Lat", Others: []string{"lat"}},
	{Canonical: FieldLongitude, External: "Lon", Others: []string{"lon", "lng"}},
}

var (
	toCanonical = make(map[string]string)
	toExternal  = make(map[string]string)
)

func init() {
	for _, a := range ParameterAliases {
		toExternal[a.Canonical] = a.External
		for _, name := range append([]string{a.Canonical, a.External}, a.Others...) {
			toCanonical[strings.ToLower(name)] = a.Canonical
		}
	}
}

// CanonicalName resolves any accepted spelling of a parameter or coordinate
// field to its canonical name. Matching is case-insensitive.
func CanonicalName(name string) (string, bool) {
	c, ok := toCanonical[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// CanonicalParameter resolves a name to one of the measured parameters in
// FeatureOrder. Coordinate fields are not parameters.
func CanonicalParameter(name string) (string, bool) {
	c, ok := CanonicalName(name)
	if !ok || c == FieldLatitude || c == FieldLongitude {
		return "", false
	}
	return c, true
}

// ExternalName returns the dataset/model spelling of a canonical name, or the
// name unchanged when it has no alias.
func ExternalName(canonical string) string {
	if e, ok := toExternal[canonical]; ok {
		return e
	}
	return canonical
}
