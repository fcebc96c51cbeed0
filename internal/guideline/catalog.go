package guideline

import "github.com/water-quality-server/internal/domain"

type (
	tiers     = []domain.SeverityThreshold
	measures  = map[domain.Priority][]string
	estimates = map[domain.Priority]domain.Estimate
)

const (
	low  = domain.DirectionLow
	high = domain.DirectionHigh

	immediate  = domain.PriorityImmediate
	shortTerm  = domain.PriorityShortTerm
	longTerm   = domain.PriorityLongTerm
	preventive = domain.PriorityPreventive

	severe   = domain.SeveritySevere
	moderate = domain.SeverityModerate
	mild     = domain.SeverityMild
)

// DefaultCatalog returns a fresh copy of the built-in WHO-derived catalog.
// Costs are indicative USD figures for a small community supply.
func DefaultCatalog() []domain.ParameterGuideline {
	return []domain.ParameterGuideline{
		{
			Parameter: domain.ParamTemperature,
			Unit:      "°C",
			Range:     domain.Range{Min: 5, Max: 30},
			Severity: map[domain.Direction]tiers{
				low:  {{Level: severe, Threshold: 0}, {Level: moderate, Threshold: 2}, {Level: mild, Threshold: 4}},
				high: {{Level: severe, Threshold: 35}, {Level: moderate, Threshold: 32}, {Level: mild, Threshold: 31}},
			},
			Measures: map[domain.Direction]measures{
				low: {
					immediate:  {"Insulate exposed intake and distribution pipework against freezing"},
					shortTerm:  {"Extend disinfectant contact time to compensate for slower reaction at low temperature"},
					preventive: {"Schedule winter inspections of intake structures"},
				},
				high: {
					immediate:  {"Increase coliform sampling frequency while temperature is elevated"},
					shortTerm:  {"Shade storage tanks and reduce residence time in reservoirs"},
					longTerm:   {"Relocate or deepen the intake to draw cooler water"},
					preventive: {"Restore riparian vegetation to shade the source"},
				},
			},
			Estimates: map[domain.Direction]estimates{
				low:  {immediate: {Cost: 1500, Timeframe: "1 week"}, shortTerm: {Cost: 500, Timeframe: "2 weeks"}},
				high: {shortTerm: {Cost: 4000, Timeframe: "1 month"}, longTerm: {Cost: 60000, Timeframe: "12 months"}},
			},
		},
		{
			Parameter: domain.ParamDissolvedOxygen,
			Unit:      "mg/L",
			Range:     domain.Range{Min: 5, Max: 14},
			Severity: map[domain.Direction]tiers{
				low:  {{Level: severe, Threshold: 3}, {Level: moderate, Threshold: 4}},
				high: {{Level: severe, Threshold: 18}, {Level: moderate, Threshold: 16}},
			},
			Measures: map[domain.Direction]measures{
				low: {
					immediate:  {"Install temporary aeration at the intake"},
					shortTerm:  {"Identify and stop organic discharges upstream of the intake"},
					longTerm:   {"Construct a cascade or diffused-air aeration stage"},
					preventive: {"Monitor dissolved oxygen continuously during warm months"},
				},
				high: {
					shortTerm:  {"Check for algal blooms causing supersaturation"},
					preventive: {"Control nutrient loading to limit algal growth"},
				},
			},
			Estimates: map[domain.Direction]estimates{
				low: {
					immediate: {Cost: 2500, Timeframe: "3 days"},
					longTerm:  {Cost: 45000, Timeframe: "6 months"},
				},
			},
		},
		{
			Parameter: domain.ParamPH,
			Range:     domain.Range{Min: 6.5, Max: 8.5},
			Severity: map[domain.Direction]tiers{
				low:  {{Level: severe, Threshold: 6.0}, {Level: moderate, Threshold: 6.4}},
				high: {{Level: severe, Threshold: 9.0}, {Level: moderate, Threshold: 8.6}},
			},
			Measures: map[domain.Direction]measures{
				low: {
					immediate:  {"Dose lime or soda ash to raise pH above 6.5"},
					shortTerm:  {"Inspect distribution pipework for corrosion and metal leaching"},
					longTerm:   {"Install a calcite contactor for continuous neutralization"},
					preventive: {"Calibrate pH probes weekly"},
				},
				high: {
					immediate:  {"Dose carbon dioxide or acid to bring pH below 8.5"},
					shortTerm:  {"Review coagulant and lime dosing rates"},
					longTerm:   {"Automate pH correction with feedback dosing control"},
					preventive: {"Calibrate pH probes weekly"},
				},
			},
			Estimates: map[domain.Direction]estimates{
				low: {
					immediate: {Cost: 800, Timeframe: "24 hours"},
					longTerm:  {Cost: 25000, Timeframe: "3 months"},
				},
				high: {
					immediate: {Cost: 900, Timeframe: "24 hours"},
					longTerm:  {Cost: 18000, Timeframe: "3 months"},
				},
			},
		},
		{
			Parameter: domain.ParamConductivity,
			Unit:      "µS/cm",
			Range:     domain.Range{Min: 50, Max: 1500},
			Severity: map[domain.Direction]tiers{
				low:  {{Level: severe, Threshold: 10}, {Level: moderate, Threshold: 30}},
				high: {{Level: severe, Threshold: 3000}, {Level: moderate, Threshold: 2000}},
			},
			Measures: map[domain.Direction]measures{
				low: {
					shortTerm:  {"Remineralize treated water to reduce its corrosivity"},
					preventive: {"Verify conductivity meter calibration"},
				},
				high: {
					immediate:  {"Test for saline intrusion and industrial discharge"},
					shortTerm:  {"Blend with a lower-salinity source"},
					longTerm:   {"Evaluate reverse osmosis treatment"},
					preventive: {"Map and monitor dischargers in the catchment"},
				},
			},
			Estimates: map[domain.Direction]estimates{
				high: {
					immediate: {Cost: 600, Timeframe: "1 week"},
					longTerm:  {Cost: 150000, Timeframe: "18 months"},
				},
			},
		},
		{
			Parameter: domain.ParamBOD,
			Unit:      "mg/L",
			Range:     domain.Range{Min: 0, Max: 3},
			Severity: map[domain.Direction]tiers{
				high: {{Level: severe, Threshold: 6}, {Level: moderate, Threshold: 4}},
			},
			Measures: map[domain.Direction]measures{
				high: {
					immediate:  {"Trace and isolate sewage or organic waste inflows"},
					shortTerm:  {"Increase coagulation and filtration performance checks"},
					longTerm:   {"Upgrade upstream wastewater treatment"},
					preventive: {"Enforce buffer zones around the abstraction point"},
				},
			},
			Estimates: map[domain.Direction]estimates{
				high: {
					immediate: {Cost: 1200, Timeframe: "1 week"},
					longTerm:  {Cost: 250000, Timeframe: "24 months"},
				},
			},
		},
		{
			Parameter: domain.ParamNitrate,
			Unit:      "mg/L",
			Range:     domain.Range{Min: 0, Max: 50},
			Severity: map[domain.Direction]tiers{
				high: {{Level: severe, Threshold: 100}, {Level: moderate, Threshold: 55}},
			},
			Measures: map[domain.Direction]measures{
				high: {
					immediate:  {"Issue an advisory against use for infant formula"},
					shortTerm:  {"Blend with a low-nitrate source"},
					longTerm:   {"Install ion exchange or biological denitrification"},
					preventive: {"Work with farmers on fertilizer application timing"},
				},
			},
			Estimates: map[domain.Direction]estimates{
				high: {
					immediate: {Cost: 300, Timeframe: "24 hours"},
					longTerm:  {Cost: 120000, Timeframe: "12 months"},
				},
			},
		},
		{
			Parameter: domain.ParamFecalColiform,
			Unit:      "CFU/100mL",
			Range:     domain.Range{Min: 0, Max: 0},
			Severity: map[domain.Direction]tiers{
				high: {{Level: severe, Threshold: 100}, {Level: moderate, Threshold: 10}, {Level: mild, Threshold: 1}},
			},
			Measures: map[domain.Direction]measures{
				high: {
					immediate:  {"Issue a boil-water notice", "Shock-chlorinate storage and distribution"},
					shortTerm:  {"Locate the contamination source by sanitary survey"},
					longTerm:   {"Add UV disinfection as a second barrier"},
					preventive: {"Maintain a free chlorine residual of at least 0.2 mg/L"},
				},
			},
			Estimates: map[domain.Direction]estimates{
				high: {
					immediate: {Cost: 2000, Timeframe: "24 hours"},
					longTerm:  {Cost: 35000, Timeframe: "6 months"},
				},
			},
		},
		{
			Parameter: domain.ParamTotalColiform,
			Unit:      "CFU/100mL",
			Range:     domain.Range{Min: 0, Max: 50},
			Severity: map[domain.Direction]tiers{
				high: {{Level: severe, Threshold: 500}, {Level: moderate, Threshold: 100}},
			},
			Measures: map[domain.Direction]measures{
				high: {
					immediate:  {"Increase chlorine dose and verify residual at the network extremities"},
					shortTerm:  {"Flush and inspect the distribution network"},
					longTerm:   {"Replace deteriorated mains and storage linings"},
					preventive: {"Sample total coliforms weekly at fixed points"},
				},
			},
			Estimates: map[domain.Direction]estimates{
				high: {
					immediate: {Cost: 700, Timeframe: "48 hours"},
					shortTerm: {Cost: 5000, Timeframe: "1 month"},
				},
			},
		},
	}
}
