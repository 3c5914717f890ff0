package domain

// Copy-on-write mutation helpers. Each returns a new package value with
// exactly one sub-asset replaced, so concurrent readers never observe a
// partial update. An out-of-range index returns the receiver unchanged.

// WithThumbnail returns a copy with the rendered image for the given
// thumbnail-variant index set.
func (p GeneratedPackage) WithThumbnail(idx int, dataURI string) GeneratedPackage {
	if idx < 0 || idx >= len(p.ThumbnailIdeas) {
		return p
	}
	images := make(map[int]string, len(p.ThumbnailImages)+1)
	for k, v := range p.ThumbnailImages {
		images[k] = v
	}
	images[idx] = dataURI
	p.ThumbnailImages = images
	return p
}

// WithSceneImage returns a copy with scene idx's rendered visual replaced.
func (p GeneratedPackage) WithSceneImage(idx int, dataURI string) GeneratedPackage {
	return p.withScene(idx, func(sc *ScriptScene) {
		sc.ImageData = dataURI
	})
}

// WithSceneAudio returns a copy with scene idx's synthesized narration clip
// replaced.
func (p GeneratedPackage) WithSceneAudio(idx int, base64PCM string) GeneratedPackage {
	return p.withScene(idx, func(sc *ScriptScene) {
		sc.AudioData = base64PCM
	})
}

// WithSceneNarration returns a copy with scene idx's narration text replaced.
// Any cached audio for that scene is cleared, since it no longer matches the
// text.
func (p GeneratedPackage) WithSceneNarration(idx int, text string) GeneratedPackage {
	return p.withScene(idx, func(sc *ScriptScene) {
		sc.Narration = text
		sc.AudioData = ""
	})
}

func (p GeneratedPackage) withScene(idx int, mutate func(*ScriptScene)) GeneratedPackage {
	if idx < 0 || idx >= len(p.Script) {
		return p
	}
	script := make([]ScriptScene, len(p.Script))
	copy(script, p.Script)
	mutate(&script[idx])
	p.Script = script
	return p
}
