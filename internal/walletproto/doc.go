// Package walletproto encodes and decodes the Wallet<->Coordinator
// Protobuf messages by hand with protowire, since no protoc toolchain is
// available to generate bindings from a .proto file. Wire shapes follow
// spec.md's WalletCoordinatorMessage / WalletSigningRequest /
// WalletSigningResponse definitions exactly.
package walletproto
