package jikan

// Image is one rendition of a poster or portrait.
type Image struct {
	ImageURL      string `json:"image_url"`
	SmallImageURL string `json:"small_image_url,omitempty"`
	LargeImageURL string `json:"large_image_url,omitempty"`
}

type Images struct {
	JPG  Image  `json:"jpg"`
	WebP *Image `json:"webp,omitempty"`
}

type Title struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}

type Aired struct {
	From   *string `json:"from"`
	To     *string `json:"to"`
	String string  `json:"string"`
}

// Entity is the shared shape of genres, themes, demographics and studios.
type Entity struct {
	MalID int    `json:"mal_id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

type Trailer struct {
	YoutubeID *string `json:"youtube_id"`
	URL       *string `json:"url"`
	EmbedURL  *string `json:"embed_url"`
}

type Anime struct {
	MalID         int      `json:"mal_id"`
	URL           string   `json:"url"`
	Images        Images   `json:"images"`
	Trailer       Trailer  `json:"trailer"`
	Approved      bool     `json:"approved"`
	Titles        []Title  `json:"titles"`
	Title         string   `json:"title"`
	TitleEnglish  *string  `json:"title_english"`
	TitleJapanese *string  `json:"title_japanese"`
	Type          *string  `json:"type"`
	Source        *string  `json:"source"`
	Episodes      *int     `json:"episodes"`
	Status        *string  `json:"status"`
	Airing        bool     `json:"airing"`
	Aired         Aired    `json:"aired"`
	Duration      *string  `json:"duration"`
	Rating        *string  `json:"rating"`
	Score         *float64 `json:"score"`
	ScoredBy      *int     `json:"scored_by"`
	Rank          *int     `json:"rank"`
	Popularity    *int     `json:"popularity"`
	Members       *int     `json:"members"`
	Favorites     *int     `json:"favorites"`
	Synopsis      *string  `json:"synopsis"`
	Background    *string  `json:"background"`
	Season        *string  `json:"season"`
	Year          *int     `json:"year"`
	Studios       []Entity `json:"studios"`
	Genres        []Entity `json:"genres"`
	Themes        []Entity `json:"themes"`
	Demographics  []Entity `json:"demographics"`
}

type PaginationItems struct {
	Count   int `json:"count"`
	Total   int `json:"total"`
	PerPage int `json:"per_page"`
}

type Pagination struct {
	LastVisiblePage int              `json:"last_visible_page"`
	HasNextPage     bool             `json:"has_next_page"`
	CurrentPage     int              `json:"current_page,omitempty"`
	Items           *PaginationItems `json:"items,omitempty"`
}

type AnimeResponse struct {
	Data       []Anime    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type AnimeDetailResponse struct {
	Data Anime `json:"data"`
}

type Genre struct {
	MalID int    `json:"mal_id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Count int    `json:"count"`
}

type GenreResponse struct {
	Data []Genre `json:"data"`
}

type Person struct {
	MalID  int    `json:"mal_id"`
	URL    string `json:"url"`
	Images Images `json:"images"`
	Name   string `json:"name"`
}

type VoiceActor struct {
	Person   Person `json:"person"`
	Language string `json:"language"`
}

type Character struct {
	Character   Person       `json:"character"`
	Role        string       `json:"role"`
	VoiceActors []VoiceActor `json:"voice_actors"`
}

type CharacterResponse struct {
	Data []Character `json:"data"`
}

type Episode struct {
	MalID         int      `json:"mal_id"`
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	TitleJapanese *string  `json:"title_japanese"`
	TitleRomanji  *string  `json:"title_romanji"`
	Aired         *string  `json:"aired"`
	Score         *float64 `json:"score"`
	Filler        bool     `json:"filler"`
	Recap         bool     `json:"recap"`
}

type EpisodeResponse struct {
	Data       []Episode  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// EmptySearch is returned for queries too short to send upstream.
func EmptySearch() AnimeResponse {
	return AnimeResponse{Data: []Anime{}}
}
