package player

import "strings"

// Capability flags a media-player feature a device category supports.
// Commands outside a player's capability mask are rejected before any
// device traffic.
type Capability uint32

const (
	CapPause Capability = 1 << iota
	CapSeek
	CapVolumeSet
	CapVolumeMute
	CapPreviousTrack
	CapNextTrack
	CapTurnOn
	CapTurnOff
	CapPlayMedia
	CapVolumeStep
	CapSelectSource
	CapClearPlaylist
	CapPlay
	CapShuffleSet
	CapSelectSoundMode
)

// Has reports whether every bit in want is set.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// Track is one playlist entry.
type Track struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// Device categories. Each maps to a built-in Profile.
const (
	CategoryMusic   = "music"
	CategoryVideo   = "video"
	CategoryNetflix = "netflix"
)

// Profile bundles everything category-specific about a player: the
// supported commands, the sound modes it offers, and the playlist it
// serves. A Profile is plain data handed in at construction; players
// never consult globals.
type Profile struct {
	Category         string
	Support          Capability
	SoundModes       []string
	DefaultSoundMode string
	Tracks           []Track
	Album            string
	// CoverURLFormat renders cover art URLs from a media content id
	// (video category).
	CoverURLFormat string
}

// MusicProfile is the default category: hardware playback and volume
// control plus a locally tracked playlist.
func MusicProfile() Profile {
	return Profile{
		Category: CategoryMusic,
		Support: CapPause | CapVolumeSet | CapVolumeMute | CapTurnOn | CapTurnOff |
			CapClearPlaylist | CapPlay | CapShuffleSet | CapVolumeStep |
			CapPreviousTrack | CapNextTrack | CapSelectSoundMode,
		SoundModes:       []string{"Music", "Movie"},
		DefaultSoundMode: "Music",
		Tracks:           defaultTracks(),
		Album:            "Bounzz",
	}
}

// VideoProfile covers players fronting a streaming app: volume and
// power control, source/seek surfaces, no playlist.
func VideoProfile() Profile {
	return Profile{
		Category: CategoryVideo,
		Support: CapPause | CapVolumeSet | CapVolumeMute | CapTurnOn | CapTurnOff |
			CapPlayMedia | CapPlay | CapShuffleSet | CapSelectSoundMode |
			CapSelectSource | CapSeek,
		SoundModes:       []string{"Music", "Movie"},
		DefaultSoundMode: "Music",
		CoverURLFormat:   "https://img.youtube.com/vi/%s/hqdefault.jpg",
	}
}

// NetflixProfile is the most restricted category: transport control
// only, volume stays with the TV.
func NetflixProfile() Profile {
	return Profile{
		Category: CategoryNetflix,
		Support: CapPause | CapTurnOn | CapTurnOff | CapSelectSource | CapPlay |
			CapShuffleSet | CapPreviousTrack | CapNextTrack | CapSelectSoundMode,
		SoundModes:       []string{"Music", "Movie"},
		DefaultSoundMode: "Music",
	}
}

// ProfileFor returns the built-in profile for a category name. Unknown
// or empty categories fall back to music.
func ProfileFor(category string) Profile {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case CategoryVideo:
		return VideoProfile()
	case CategoryNetflix:
		return NetflixProfile()
	default:
		return MusicProfile()
	}
}

// defaultTracks is the demo playlist music players ship with until a
// real one is configured.
func defaultTracks() []Track {
	return []Track{
		{"Technohead", "I Wanna Be A Hippy (Flamman & Abraxas Radio Mix)"},
		{"Paul Elstak", "Luv U More"},
		{"Dune", "Hardcore Vibes"},
		{"Nakatomi", "Children Of The Night"},
		{"Party Animals", "Have You Ever Been Mellow? (Flamman & Abraxas Radio Mix)"},
		{"Rob G.*", "Ecstasy, You Got What I Need"},
		{"Lipstick", "I'm A Raver"},
		{"4 Tune Fairytales", "My Little Fantasy (Radio Edit)"},
		{"Prophet", "The Big Boys Don't Cry"},
		{"Lovechild", "All Out Of Love (DJ Weirdo & Sim Remix)"},
		{"Stingray & Sonic Driver", "Cold As Ice (El Bruto Remix)"},
		{"Highlander", "Hold Me Now (Bass-D & King Matthew Remix)"},
		{"Juggernaut", `Ruffneck Rules Da Artcore Scene (12" Edit)`},
		{"Diss Reaction", "Jiiieehaaaa"},
		{"Flamman And Abraxas", "Good To Go (Radio Mix)"},
		{"Critical Mass", "Dancing Together"},
		{"Charly Lownoise & Mental Theo", "Ultimate Sex Track (Bass-D & King Matthew Remix)"},
	}
}
