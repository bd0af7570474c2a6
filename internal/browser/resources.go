// CLAUDE:SUMMARY Intercepts and blocks configured resource types (fonts, media, trackers) on Rod pages.
package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking hijacks page requests and fails those whose type
// is listed. The returned router must be stopped when the page closes.
func applyResourceBlocking(page *rod.Page, types []string) *rod.HijackRouter {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if shouldBlock(blockSet, string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// shouldBlock maps CDP resource types to config names (plural forms are
// accepted for the common ones).
func shouldBlock(blockSet map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)
	switch lower {
	case "image":
		return blockSet["images"] || blockSet["image"]
	case "font":
		return blockSet["fonts"] || blockSet["font"]
	case "stylesheet":
		return blockSet["stylesheets"] || blockSet["stylesheet"]
	case "media":
		return blockSet["media"]
	}
	return blockSet[lower]
}
