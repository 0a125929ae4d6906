// Command lftl-demo reproduces examples/single_area's counter demo on
// the host: format the area on first run, then read-increment-write a
// 32-bit counter living at the start of the data window, atomically.
package main

import (
	"encoding/binary"
	"fmt"
	"os"

	log "github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	lftl "github.com/sebastien-riou/lean-ftl"
	"github.com/sebastien-riou/lean-ftl/nvmsim"
)

type rootParameters struct {
	ImagePath string `short:"f" long:"image" description:"Path of the NVM image file (created on first run)" required:"true"`
	DataSize  uint64 `long:"data-size" description:"Logical data size of the area, in bytes" default:"256"`
	WriteSize uint32 `long:"write-size" description:"NVM program granularity, in bytes" default:"4"`
	EraseSize uint32 `long:"erase-size" description:"NVM erase granularity, in bytes" default:"4096"`
	NSlots    uint32 `long:"n-slots" description:"Number of slots in the area" default:"2"`
	TearAt    int64  `long:"tear-at" description:"Simulate a power loss at the given write-unit count during the counter update, then remount to show the previous counter value survives (-1 disables)" default:"-1"`
}

var rootArguments = new(rootParameters)

func displayCounter(ctx *lftl.Context) {
	var buf [4]byte
	err := ctx.Read(buf[:], ctx.Base, 4)
	log.PanicIf(err)
	fmt.Printf("INFO:         cnt0 = 0x%08x\n", binary.LittleEndian.Uint32(buf[:]))
}

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)
	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	slotMeta := lftl.SlotMetaSize(rootArguments.WriteSize)
	slotPages := (rootArguments.DataSize + slotMeta + uint64(rootArguments.EraseSize) - 1) / uint64(rootArguments.EraseSize)
	areaSize := uint64(rootArguments.NSlots) * slotPages * uint64(rootArguments.EraseSize)

	nvm := nvmsim.New(0, areaSize, rootArguments.WriteSize, rootArguments.EraseSize)
	nvm.SaveFile = rootArguments.ImagePath

	ctx := &lftl.Context{
		NVMProps: &lftl.NVMProps{
			Base:      0,
			Size:      areaSize,
			WriteSize: rootArguments.WriteSize,
			EraseSize: rootArguments.EraseSize,
		},
		Base:     0,
		AreaSize: areaSize,
		DataSize: rootArguments.DataSize,
		Accessor: nvm,
	}

	lftl.InitLib()
	err = lftl.RegisterArea(ctx)
	log.PanicIf(err)

	initialized := true
	if loadErr := nvm.LoadFile(rootArguments.ImagePath); loadErr != nil {
		initialized = false
	}

	if !initialized {
		fmt.Println("INFO: NVM not initialized, calling Format")
		err = ctx.Format()
		log.PanicIf(err)
		err = ctx.FillTransactional(0)
		log.PanicIf(err)
	} else {
		fmt.Println("INFO: NVM already initialized")
	}

	displayCounter(ctx)

	if rootArguments.TearAt >= 0 {
		fmt.Printf("INFO: arming tear injection at write unit %d\n", rootArguments.TearAt)
		nvm.SetTearingTarget(uint64(rootArguments.TearAt))
	}

	var buf [4]byte
	err = ctx.Read(buf[:], ctx.Base, 4)
	log.PanicIf(err)
	cnt0 := binary.LittleEndian.Uint32(buf[:]) + 1
	binary.LittleEndian.PutUint32(buf[:], cnt0)
	err = ctx.WriteAny(ctx.Base, lftl.FromBytes(buf[:]), 4)
	if err != nil {
		fmt.Printf("INFO: counter update tore as requested: %s\n", err)
	}
	nvm.ClearTearing()

	if rootArguments.TearAt >= 0 {
		fmt.Println("INFO: remounting to show recovery after the simulated power loss")
		ctx2 := &lftl.Context{
			NVMProps: ctx.NVMProps,
			Base:     ctx.Base,
			AreaSize: ctx.AreaSize,
			DataSize: ctx.DataSize,
			Accessor: nvm,
		}
		lftl.InitLib()
		err = lftl.RegisterArea(ctx2)
		log.PanicIf(err)
		displayCounter(ctx2)
		return
	}

	displayCounter(ctx)
}
