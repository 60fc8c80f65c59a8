package inference

// DiseaseInfo is the owner-facing description attached to a prediction.
type DiseaseInfo struct {
	Symptoms  []string `json:"symptoms"`
	Treatment string   `json:"treatment"`
}

// DefaultLabels is the label order the published models were trained with.
var DefaultLabels = []string{"Allergy", "Infection", "Mange", "Normal", "Tumor"}

var diseases = map[string]DiseaseInfo{
	"Allergy": {
		Symptoms: []string{
			"Itching and scratching",
			"Red, inflamed skin",
			"Hair loss",
			"Skin rash or hives",
			"Recurring ear infections",
			"Paw licking or chewing",
			"Rubbing face on surfaces",
		},
		Treatment: "Treatment typically involves identifying and eliminating the allergen if possible. " +
			"Medications like antihistamines, steroids, or immunotherapy may be prescribed. " +
			"Special shampoos and dietary changes can also help manage symptoms. " +
			"Regular bathing with hypoallergenic shampoos can provide relief.",
	},
	"Infection": {
		Symptoms: []string{
			"Redness and swelling",
			"Pus or discharge",
			"Foul odor",
			"Excessive scratching or licking of affected area",
			"Pain when touched",
			"Crusty or scabby skin",
			"Hot spots (acute moist dermatitis)",
		},
		Treatment: "Bacterial infections usually require antibiotics, either topical, oral, or both. " +
			"Fungal infections need antifungal medications. The affected area should be kept clean and dry. " +
			"In some cases, medicated shampoos or sprays may be recommended. " +
			"Complete the full course of medication even if symptoms improve.",
	},
	"Mange": {
		Symptoms: []string{
			"Intense itching",
			"Hair loss in patches or widespread",
			"Red, inflamed skin",
			"Crusty or scaly skin",
			"Sores and lesions",
			"Thickened skin (in chronic cases)",
			"Secondary infections",
		},
		Treatment: "Treatment depends on the type of mange (demodectic or sarcoptic). " +
			"Medications like ivermectin, milbemycin, or selamectin may be prescribed. " +
			"Medicated dips or shampoos containing benzoyl peroxide can help. " +
			"The living environment needs to be thoroughly cleaned to prevent reinfestation.",
	},
	"Normal": {
		Symptoms: []string{
			"No visible skin abnormalities",
			"Regular coat appearance",
			"No excessive scratching or biting",
			"Skin is supple and elastic",
			"No redness or inflammation",
			"No unusual odor",
			"Normal shedding patterns",
		},
		Treatment: "Regular grooming, balanced diet, and routine veterinary check-ups are recommended to maintain healthy skin and coat. " +
			"Use dog-appropriate shampoos when bathing. Monitor for any changes in skin condition.",
	},
	"Tumor": {
		Symptoms: []string{
			"Visible lump or growth on or under the skin",
			"Change in size, shape, or color of existing growth",
			"Sores that don't heal",
			"Bleeding or discharge from a growth",
			"Pain or tenderness in affected area",
			"Loss of appetite or weight loss",
			"Difficulty breathing or swallowing (if tumor affects these areas)",
		},
		Treatment: "Treatment depends on the type, size, and location of the tumor. " +
			"Options include surgical removal, chemotherapy, radiation therapy, or a combination approach. " +
			"Early detection and treatment significantly improve the prognosis. " +
			"Regular follow-up examinations are essential to monitor for recurrence.",
	},
}

// LookupDisease returns the description for a label, if one is known.
func LookupDisease(label string) (DiseaseInfo, bool) {
	d, ok := diseases[label]
	return d, ok
}
