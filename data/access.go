package data

// AccessMode controls how an entry is opened.
type AccessMode int

const (
	AccessModeRead  AccessMode = 1 << iota // open for reading
	AccessModeWrite                        // open for staged writing
)

// IsReadOnly checks if the mode only allows reading.
func (m AccessMode) IsReadOnly() bool {
	return m&AccessModeRead != 0 && m&AccessModeWrite == 0
}

// IsWriteOnly checks if the mode only allows writing.
func (m AccessMode) IsWriteOnly() bool {
	return m&AccessModeWrite != 0 && m&AccessModeRead == 0
}
