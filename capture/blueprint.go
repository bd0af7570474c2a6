package capture

import "github.com/hazyhaar/screenright/internal/tree"

// Node is one capture in the blueprint tree.
type Node = tree.Node

// Annotation is the bounding box of the element clicked during a capture.
type Annotation struct {
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	Width        float64   `json:"width"`
	Height       float64   `json:"height"`
	Text         string    `json:"text"`
	PaddingPixel int       `json:"paddingPixel"`
	Direction    Direction `json:"direction"`
	TextColor    Color     `json:"textColor"`
}

// Blueprint is the serialized tree and annotations sent at close.
type Blueprint struct {
	ScreenshotItemAttributes []Node                `json:"screenshotItemAttributes"`
	Annotations              map[string]Annotation `json:"annotations,omitempty"`
}

type tokenRequest struct {
	DeploymentToken string `json:"deployment_token"`
}

type finalizeRequest struct {
	DeploymentToken string    `json:"deployment_token"`
	Blueprint       Blueprint `json:"blueprint"`
}
