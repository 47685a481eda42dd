package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Name            string     `json:"name"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	EntityID        int32          `json:"entity_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	MillisPerTick     int64 `json:"millis_per_tick"`
	CuboidEdge        int   `json:"cuboid_edge"`
	MaxPendingActions int   `json:"max_pending_actions"`
	MaxFollowUpTicks  int   `json:"max_follow_up_ticks"`
	Seed              int64 `json:"seed"`
}

type CatalogDigests struct {
	BlockPalette  DigestRef `json:"block_palette"`
	ItemPalette   DigestRef `json:"item_palette"`
	RecipesDigest string    `json:"recipes_digest"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// ACT (client -> server): one local change and the commit level the client gave it.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Commit          int64  `json:"commit"`
	// Action is base64 of the tagged binary action encoding.
	Action string `json:"action"`
}

// TICK (server -> client): what changed for this client in one server tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            int64  `json:"tick"`
	LatestCommit    int64  `json:"latest_commit"`

	Self            *EntityPayload   `json:"self,omitempty"`
	SelfIsNew       bool             `json:"self_is_new,omitempty"`
	AddedEntities   []PartialPayload `json:"added_entities,omitempty"`
	EntityUpdates   []PartialPayload `json:"entity_updates,omitempty"`
	RemovedEntities []int32          `json:"removed_entities,omitempty"`

	AddedCuboids   []CuboidPayload `json:"added_cuboids,omitempty"`
	RemovedCuboids [][3]int        `json:"removed_cuboids,omitempty"`
	BlockUpdates   []BlockPayload  `json:"block_updates,omitempty"`
}

type EntityPayload struct {
	ID        int32       `json:"id"`
	Pos       [3]int32    `json:"pos"`
	Health    int         `json:"health"`
	Inventory []ItemStack `json:"inventory"`
	Weight    int         `json:"weight"`
	Selected  string      `json:"selected,omitempty"`
}

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type PartialPayload struct {
	ID     int32    `json:"id"`
	Kind   string   `json:"kind"`
	Pos    [3]int32 `json:"pos"`
	Health int      `json:"health"`
}

type CuboidPayload struct {
	Addr [3]int `json:"addr"`
	// RLE is the palette run-length encoding of the block ids.
	RLE    string         `json:"rle"`
	Damage []BlockPayload `json:"damage,omitempty"`
}

type BlockPayload struct {
	Pos    [3]int32 `json:"pos"`
	Block  uint16   `json:"block"`
	Damage uint16   `json:"damage,omitempty"`
}

// KICK (server -> client), sent before the server closes the connection.
type KickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
