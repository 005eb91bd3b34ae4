// Package analyses maps model names onto architecture families for result
// reporting.
package analyses

import (
	"regexp"
	"strings"
)

type family struct {
	name    string
	pattern *regexp.Regexp
}

// Ordering matters: more specific families are matched before the broad ones
// they would otherwise fall into (resnext before resnet, pnasnet before
// nasnet, the self-supervised -rn50 variants before ResNet).
var families = []family{
	{"SSL", regexp.MustCompile(`-rn50$`)},
	{"DINO", regexp.MustCompile(`dino`)},
	{"CLIP", regexp.MustCompile(`clip`)},
	{"ViT-JFT", regexp.MustCompile(`^vit-g`)},
	{"ViT-IN", regexp.MustCompile(`^(vit_tiny|vit_small|vit_base|vit_large|vit-s|vit-b|vit-l|vit_s|vit_b|vit_l)`)},
	{"Align", regexp.MustCompile(`^align`)},
	{"Basic", regexp.MustCompile(`^basic`)},
	{"AlexNet", regexp.MustCompile(`alexnet`)},
	{"VGG", regexp.MustCompile(`vgg`)},
	{"ResNext", regexp.MustCompile(`resnext`)},
	{"ResNet", regexp.MustCompile(`^resnet`)},
	{"EfficientNet", regexp.MustCompile(`efficientnet`)},
	{"Inception", regexp.MustCompile(`^inception`)},
	{"MobileNet", regexp.MustCompile(`^mobilenet`)},
	{"PNasNet", regexp.MustCompile(`^pnasnet`)},
	{"NasNet", regexp.MustCompile(`^nasnet`)},
	{"DenseNet", regexp.MustCompile(`^densenet`)},
	{"ConvNext", regexp.MustCompile(`convnext`)},
	{"ShuffleNet", regexp.MustCompile(`shufflenet`)},
	{"SqueezeNet", regexp.MustCompile(`squeezenet`)},
	{"CorNet", regexp.MustCompile(`cornet`)},
	{"BiT", regexp.MustCompile(`bit`)},
	{"GoogleNet", regexp.MustCompile(`googlenet`)},
}

// GetFamilyName returns the architecture family of a model name, or "Other"
// when no family matches. Matching is case-insensitive.
func GetFamilyName(model string) string {
	lower := strings.ToLower(model)
	for _, fam := range families {
		if fam.pattern.MatchString(lower) {
			return fam.name
		}
	}
	return "Other"
}
